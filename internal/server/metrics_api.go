package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type metricResponse struct {
	Name         string `json:"name"`
	FriendlyName string `json:"friendly_name"`
	CostPerHour  string `json:"cost_per_hour"`
	Description  string `json:"description"`
}

// ListMetrics returns the billable metric registry.
func (s *Server) ListMetrics(c *gin.Context) {
	all := s.registry.All()
	out := make([]metricResponse, 0, len(all))
	for _, m := range all {
		out = append(out, metricResponse{
			Name:         m.Name,
			FriendlyName: m.FriendlyName,
			CostPerHour:  m.CostPerHour.String(),
			Description:  m.Description,
		})
	}
	c.JSON(http.StatusOK, out)
}

// CostsPerHour prices a hypothetical hourly usage: the body maps metric
// friendly names to quantities, the response gives the per-metric and
// total credit cost of running that for one hour.
func (s *Server) CostsPerHour(c *gin.Context) {
	var quantities map[string]decimal.Decimal
	if err := c.ShouldBindJSON(&quantities); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must map metric names to quantities"})
		return
	}

	byFriendly := map[string]decimal.Decimal{}
	for _, m := range s.registry.All() {
		byFriendly[m.FriendlyName] = m.CostPerHour
	}

	costs := map[string]string{}
	total := decimal.Zero
	for friendly, quantity := range quantities {
		costPerHour, ok := byFriendly[friendly]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown metric " + friendly})
			return
		}
		cost := quantity.Mul(costPerHour)
		costs[friendly] = cost.String()
		total = total.Add(cost)
	}
	costs["total_cost"] = total.String()

	c.JSON(http.StatusOK, costs)
}
