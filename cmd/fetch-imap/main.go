// Command fetch-imap downloads mail from an IMAP mailbox and writes it
// as a JSONL batch for jobsift ingest.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	batchmail "github.com/jobsift/jobsift/internal/mail"
	"github.com/jobsift/jobsift/pkg/jobsift"
)

func main() {
	var (
		server   = flag.String("server", "", "IMAP server host:port (required)")
		username = flag.String("username", "", "IMAP account name (required)")
		folder   = flag.String("folder", "INBOX", "Mailbox folder to read")
		days     = flag.Int("days", 30, "Fetch messages received in the last N days")
		limit    = flag.Int("limit", 500, "Maximum messages to fetch")
		output   = flag.String("output", "messages.jsonl", "Path to JSONL output, - for stdout")
	)
	flag.Parse()

	if *server == "" {
		log.Fatal("--server required")
	}
	if *username == "" {
		log.Fatal("--username required")
	}
	password := os.Getenv("JOBSIFT_IMAP_PASSWORD")
	if password == "" {
		log.Fatal("set JOBSIFT_IMAP_PASSWORD")
	}

	c, err := client.DialTLS(*server, nil)
	if err != nil {
		log.Fatalf("connect %s: %v", *server, err)
	}
	defer c.Close()

	if err := c.Login(*username, password); err != nil {
		log.Fatalf("login: %v", err)
	}
	defer c.Logout()

	msgs, err := fetchFolder(c, *folder, *days, *limit)
	if err != nil {
		log.Fatalf("fetch %s: %v", *folder, err)
	}

	out := os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("create output: %v", err)
		}
		defer f.Close()
		out = f
	}

	if err := batchmail.WriteBatch(out, msgs); err != nil {
		log.Fatalf("write output: %v", err)
	}
	fmt.Fprintf(os.Stderr, "fetched %d messages from %s\n", len(msgs), *folder)
}

func fetchFolder(c *client.Client, folder string, days, limit int) ([]jobsift.RawMessage, error) {
	mbox, err := c.Select(folder, true)
	if err != nil {
		return nil, err
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = time.Now().AddDate(0, 0, -days)

	ids, err := c.Search(criteria)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > limit {
		// keep the most recent
		ids = ids[len(ids)-limit:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var out []jobsift.RawMessage
	for msg := range messages {
		rm, ok := convert(msg, section)
		if !ok {
			continue
		}
		out = append(out, rm)
	}

	if err := <-done; err != nil {
		return nil, err
	}
	return out, nil
}

func convert(msg *imap.Message, section *imap.BodySectionName) (jobsift.RawMessage, bool) {
	if msg.Envelope == nil {
		return jobsift.RawMessage{}, false
	}

	rm := jobsift.RawMessage{
		ID:         msg.Envelope.MessageId,
		Subject:    msg.Envelope.Subject,
		ReceivedAt: msg.Envelope.Date,
	}
	if rm.ID == "" {
		rm.ID = fmt.Sprintf("uid-%d", msg.Uid)
	}
	if len(msg.Envelope.From) > 0 {
		from := msg.Envelope.From[0]
		rm.From = fmt.Sprintf("%s <%s>", from.PersonalName, from.Address())
	}

	if body := msg.GetBody(section); body != nil {
		rm.Body = extractBody(body)
	}

	return rm, true
}

// extractBody returns the first text/plain part, falling back to
// text/html. HTML survives here untouched; the ingest normalizer
// strips it.
func extractBody(r io.Reader) string {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return ""
	}

	var html string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, err := h.ContentType()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(ct, "text/plain"):
			return string(data)
		case strings.HasPrefix(ct, "text/html") && html == "":
			html = string(data)
		}
	}
	return html
}
