package engine

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/cuongbtq/analysis-delivery/internal/domain"
)

const maxRecordSize = 1 << 20

// eventStream decodes text/event-stream records from the engine. Only data
// lines are meaningful; records that fail to decode are skipped.
type eventStream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

func newEventStream(body io.ReadCloser, logger *slog.Logger) *eventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxRecordSize)
	return &eventStream{body: body, scanner: scanner, logger: logger}
}

// Next blocks until the next complete record arrives
func (s *eventStream) Next() (domain.ProgressEvent, error) {
	var data bytes.Buffer

	for s.scanner.Scan() {
		line := s.scanner.Bytes()

		if len(line) == 0 {
			if data.Len() == 0 {
				continue
			}
			var ev domain.ProgressEvent
			if err := json.Unmarshal(data.Bytes(), &ev); err != nil {
				s.logger.Debug("Skipping malformed progress record", slog.Any("error", err))
				data.Reset()
				continue
			}
			return ev, nil
		}

		if value, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.Write(bytes.TrimPrefix(value, []byte(" ")))
		}
		// Comments, event names and ids carry nothing the relay uses.
	}

	if err := s.scanner.Err(); err != nil {
		return domain.ProgressEvent{}, err
	}
	return domain.ProgressEvent{}, io.EOF
}

// Close releases the underlying connection
func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
