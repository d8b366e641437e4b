package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/pkg/errors"
)

// GetRecording resolves where the recorded message for a call lives.
func (h *Handler) GetRecording(c *gin.Context) {
	callSid := c.Param("call_sid")
	if callSid == "" {
		errors.BadRequest(c, "call_sid is required")
		return
	}

	url, err := h.recordings.GetRecordingURL(callSid)
	if err != nil {
		h.logger.Warn("recording lookup failed", zap.Error(err), zap.String("call_sid", callSid))
		errors.NotFound(c, "no recording for call")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"call_sid":      callSid,
		"recording_url": url,
	})
}
