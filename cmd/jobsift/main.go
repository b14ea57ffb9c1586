package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/jobsift/jobsift/internal/appconfig"
	"github.com/jobsift/jobsift/internal/logging"
	"github.com/jobsift/jobsift/internal/mail"
	"github.com/jobsift/jobsift/pkg/jobsift"
	"github.com/jobsift/jobsift/pkg/jobsift/classify"
	"github.com/jobsift/jobsift/pkg/jobsift/config"
	"github.com/jobsift/jobsift/pkg/jobsift/extract"
	"github.com/jobsift/jobsift/pkg/jobsift/store/sqlite"
)

const usage = `usage: jobsift <command> [flags]

commands:
  ingest   process a JSONL message batch into the application store
  list     print tracked applications, most recently updated first
  stats    print application counts by status
  export   write tracked applications as CSV
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := appconfig.New()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.InitLogger(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	switch os.Args[1] {
	case "ingest":
		runIngest(ctx, cfg, logger, os.Args[2:])
	case "list":
		runList(ctx, cfg, logger, os.Args[2:])
	case "stats":
		runStats(ctx, cfg, logger, os.Args[2:])
	case "export":
		runExport(ctx, cfg, logger, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

// newTracker wires the full pipeline from configuration: model, rules,
// classifier, extractor and the sqlite store.
func newTracker(ctx context.Context, cfg *appconfig.Config, logger *zap.Logger) (*jobsift.Tracker, error) {
	model, err := classify.LoadModel(cfg.GetString("model.path"))
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	rules := extract.DefaultRules()
	if path := cfg.GetString("rules.path"); path != "" {
		rules, err = config.LoadRules(path)
		if err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
	}

	st, err := sqlite.Open(ctx, cfg.GetString("store.path"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return jobsift.New(jobsift.Options{
		Store: st,
		Classifier: classify.New(model,
			cfg.GetFloat64("classifier.threshold"),
			cfg.GetFloat64("classifier.review_margin")),
		Extractor: extract.New(rules),
		Logger:    logger,
		Workers:   cfg.GetInt("pipeline.workers"),
	}), nil
}

// openStore wires the store alone, for read-only commands that never
// touch the classifier or the model artifact.
func openStore(ctx context.Context, cfg *appconfig.Config, logger *zap.Logger) (*jobsift.Tracker, error) {
	st, err := sqlite.Open(ctx, cfg.GetString("store.path"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return jobsift.New(jobsift.Options{Store: st, Logger: logger}), nil
}

func runIngest(ctx context.Context, cfg *appconfig.Config, logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	input := fs.String("input", "", "Path to JSONL message file, - for stdin (required)")
	fs.Parse(args)

	if *input == "" {
		log.Fatal("--input required")
	}

	var in *os.File
	if *input == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatalf("open input: %v", err)
		}
		defer f.Close()
		in = f
	}

	msgs, err := mail.ReadBatch(in)
	if err != nil {
		log.Fatalf("read messages: %v", err)
	}

	tracker, err := newTracker(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer tracker.Close()

	report, err := tracker.Run(ctx, msgs)
	if err != nil {
		log.Fatalf("ingest: %v", err)
	}

	fmt.Printf("processed %d messages: %d created, %d updated, %d irrelevant, %d for review, %d duplicate, %d failed\n",
		report.Processed, report.Created, report.Updated,
		report.SkippedIrrelevant, report.FlaggedForReview,
		report.SkippedDuplicate, len(report.Failed))
	for _, f := range report.Failed {
		fmt.Printf("  failed %s: %s\n", f.MessageID, f.Reason)
	}
	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}

func runList(ctx context.Context, cfg *appconfig.Config, logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	fs.Parse(args)

	tracker, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer tracker.Close()

	records, err := tracker.List(ctx)
	if err != nil {
		log.Fatalf("list: %v", err)
	}

	for _, r := range records {
		job := r.JobID
		if job == "" {
			job = "-"
		}
		title := r.Title
		if title == "" {
			title = "-"
		}
		fmt.Printf("%-12s  %-28s  %-28s  %-10s  %s\n",
			r.Status, r.Company, title, job,
			r.LastUpdated.Format("2006-01-02"))
	}
}

func runStats(ctx context.Context, cfg *appconfig.Config, logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Parse(args)

	tracker, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer tracker.Close()

	records, err := tracker.List(ctx)
	if err != nil {
		log.Fatalf("stats: %v", err)
	}

	counts := make(map[string]int)
	for _, r := range records {
		counts[string(r.Status)]++
	}

	fmt.Printf("%d applications tracked\n", len(records))
	for _, status := range []string{"applied", "viewed", "interview", "assessment", "offer", "rejected", "withdrawn"} {
		if n := counts[status]; n > 0 {
			fmt.Printf("  %-12s %d\n", status, n)
		}
	}
}

func runExport(ctx context.Context, cfg *appconfig.Config, logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	output := fs.String("output", "-", "Path to CSV output, - for stdout")
	fs.Parse(args)

	tracker, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer tracker.Close()

	out := os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("create output: %v", err)
		}
		defer f.Close()
		out = f
	}

	if err := tracker.Export(ctx, out); err != nil {
		log.Fatalf("export: %v", err)
	}
}
