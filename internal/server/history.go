package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	entitydomain "github.com/openbilling/credits/internal/entity/domain"
)

const historyTimeFormat = "2006-01-02 15:04:05"

type creditsHistoryResponse struct {
	Timestamps []string  `json:"timestamps"`
	Credits    []float64 `json:"credits"`
	Metrics    []string  `json:"metrics"`
}

// CreditsHistory returns the entity's balance history, newest first, in
// the column layout the dashboard chart consumes.
func (s *Server) CreditsHistory(c *gin.Context) {
	name := c.Param("entity")

	if _, err := s.entities.Resolve(c.Request.Context(), name); err != nil {
		if errors.Is(err, entitydomain.ErrEntityNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown entity"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	start, ok := parseHistoryTime(c, c.Query("start_date"))
	if !ok {
		return
	}
	end, ok := parseHistoryTime(c, c.Query("end_date"))
	if !ok {
		return
	}

	entries, err := s.history.QueryHistory(c.Request.Context(), name, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history query failed"})
		return
	}

	resp := creditsHistoryResponse{
		Timestamps: make([]string, 0, len(entries)),
		Credits:    make([]float64, 0, len(entries)),
		Metrics:    make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Timestamps = append(resp.Timestamps, e.Timestamp.UTC().Format(historyTimeFormat))
		resp.Credits = append(resp.Credits, e.Balance.InexactFloat64())
		resp.Metrics = append(resp.Metrics, e.MetricFriendlyName)
	}

	c.JSON(http.StatusOK, resp)
}

func parseHistoryTime(c *gin.Context, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(historyTimeFormat, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dates must be formatted as " + historyTimeFormat})
		return time.Time{}, false
	}
	return t, true
}
