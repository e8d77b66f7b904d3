package handler

import (
	"net/http"

	"github.com/cuongbtq/analysis-delivery/internal/domain"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

// sseSink writes progress events as text/event-stream records. Headers are
// committed on the first event so a refused request can still get a JSON error.
type sseSink struct {
	c       *gin.Context
	started bool
}

func (s *sseSink) Send(ev domain.ProgressEvent) error {
	if !s.started {
		h := s.c.Writer.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.c.Status(http.StatusOK)
		s.started = true
	}

	if err := sse.Encode(s.c.Writer, sse.Event{Data: ev}); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return nil
}
