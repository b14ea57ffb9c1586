// Package mail reads and writes message batches as JSON lines, the
// interchange format between the fetcher and the ingest command.
package mail

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jobsift/jobsift/pkg/jobsift"
	"github.com/jobsift/jobsift/pkg/jobsift/internalerr"
)

// ReadBatch decodes one message per line. Blank lines are skipped; a
// malformed line aborts the read with its line number.
func ReadBatch(r io.Reader) ([]jobsift.RawMessage, error) {
	var msgs []jobsift.RawMessage

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var m jobsift.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", internalerr.ErrIngestion, line, err)
		}
		msgs = append(msgs, m)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrIngestion, err)
	}

	return msgs, nil
}

// WriteBatch encodes one message per line.
func WriteBatch(w io.Writer, msgs []jobsift.RawMessage) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, m := range msgs {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("%w: %v", internalerr.ErrIngestion, err)
		}
	}
	return bw.Flush()
}
