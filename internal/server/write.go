package server

import (
	"bufio"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxWriteBody bounds one ingest request; the relay in front of this
// service batches lines but never anywhere near this.
const maxWriteBody = 16 << 20

// Write accepts newline-delimited line-protocol records and enqueues
// them for billing. The response never waits for processing.
func (s *Server) Write(c *gin.Context) {
	if s.limiter.Enabled() {
		allowed, err := s.limiter.AllowSource(c.Request.Context(), c.ClientIP())
		if err != nil {
			// fail open: losing billing data costs more than a burst
			s.log.Warn("rate limiter unavailable", zap.Error(err))
		} else if !allowed {
			c.Status(http.StatusTooManyRequests)
			return
		}
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxWriteBody)
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	enqueued := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.queue.Enqueue(line)
		s.metrics.RecordSampleEnqueued(c.Request.Context())
		enqueued++
	}
	if err := scanner.Err(); err != nil {
		s.log.Warn("truncated write body", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	s.log.Debug("lines enqueued", zap.Int("count", enqueued))
	c.Status(http.StatusNoContent)
}
