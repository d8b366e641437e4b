package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/voice-bridge/pkg/metrics"
)

func (h *Handler) GetMetrics(c *gin.Context) {
	metricsData := metrics.GetMetrics()
	c.JSON(http.StatusOK, metricsData)
}

func (h *Handler) GetPrometheusMetrics(c *gin.Context) {
	promMetrics := metrics.GetPrometheusMetrics()
	c.Data(http.StatusOK, "text/plain; version=0.0.4", []byte(promMetrics))
}

// GetSessions lists the currently active bridge sessions for diagnostics.
func (h *Handler) GetSessions(c *gin.Context) {
	type sessionInfo struct {
		ID      string `json:"id"`
		CallSID string `json:"call_sid"`
		State   string `json:"state"`
	}

	sessions := make([]sessionInfo, 0)
	for _, s := range h.registry.Sessions() {
		sessions = append(sessions, sessionInfo{
			ID:      s.ID(),
			CallSID: s.CallSID(),
			State:   s.State().String(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"active":   len(sessions),
		"sessions": sessions,
	})
}
