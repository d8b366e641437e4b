package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/pkg/auth"
	"github.com/troikatech/voice-bridge/pkg/errors"
	"github.com/troikatech/voice-bridge/pkg/logger"
	"github.com/troikatech/voice-bridge/pkg/metrics"
	"github.com/troikatech/voice-bridge/pkg/routing"
	"github.com/troikatech/voice-bridge/pkg/twiml"
	"github.com/troikatech/voice-bridge/pkg/webhook"
)

// InboundCall is the voice webhook for a new inbound call. It resolves
// the operator's routing settings, runs the routing decision and
// answers with call-control XML.
func (h *Handler) InboundCall(c *gin.Context) {
	start := time.Now()

	if err := h.verifySignature(c); err != nil {
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		errors.Forbidden(c, "invalid webhook signature")
		metrics.RecordRequest("voice_inbound", false, time.Since(start))
		return
	}

	callSid := c.PostForm("CallSid")
	from := c.PostForm("From")
	to := c.PostForm("To")
	if callSid == "" {
		errors.BadRequest(c, "CallSid is required")
		metrics.RecordRequest("voice_inbound", false, time.Since(start))
		return
	}

	s, err := h.settings.Lookup(c.Request.Context(), to)
	if err != nil {
		h.logger.Error("settings lookup failed", zap.Error(err), zap.String("call_sid", callSid))
		errors.InternalError(c, err, h.logger)
		metrics.RecordRequest("voice_inbound", false, time.Since(start))
		return
	}

	decision := routing.Decide(s, time.Now(), false)

	h.logger.Info("inbound call routed",
		zap.String("call_sid", callSid),
		logger.MaskPhoneIfPresent("from", from),
		logger.MaskPhoneIfPresent("to", to),
		zap.String("destination", string(decision.Destination)),
		zap.String("reason", decision.Reason),
	)

	h.renderDecision(c, s, decision, callSid, from, to)
	metrics.RecordRequest("voice_inbound", true, time.Since(start))
}

// DialStatus is the action callback of a human-forward Dial. An
// unanswered forward re-routes the call as a fallback leg; a fallback
// leg never forwards again.
func (h *Handler) DialStatus(c *gin.Context) {
	start := time.Now()

	if err := h.verifySignature(c); err != nil {
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		errors.Forbidden(c, "invalid webhook signature")
		metrics.RecordRequest("voice_dial_status", false, time.Since(start))
		return
	}

	callSid := c.PostForm("CallSid")
	dialStatus := c.PostForm("DialCallStatus")
	to := c.PostForm("To")

	if dialStatus == "completed" || dialStatus == "answered" {
		// The human picked up and the call ran its course.
		respondTwiML(c, &twiml.Response{})
		metrics.RecordRequest("voice_dial_status", true, time.Since(start))
		return
	}

	s, err := h.settings.Lookup(c.Request.Context(), to)
	if err != nil {
		h.logger.Error("settings lookup failed", zap.Error(err), zap.String("call_sid", callSid))
		errors.InternalError(c, err, h.logger)
		metrics.RecordRequest("voice_dial_status", false, time.Since(start))
		return
	}

	decision := routing.Decide(s, time.Now(), true)

	h.logger.Info("forward attempt fell back",
		zap.String("call_sid", callSid),
		zap.String("dial_status", dialStatus),
		zap.String("destination", string(decision.Destination)),
		zap.String("reason", decision.Reason),
	)

	h.renderDecision(c, s, decision, callSid, c.PostForm("From"), to)
	metrics.RecordRequest("voice_dial_status", true, time.Since(start))
}

// TranscriptionCallback receives the transcription of a recorded
// message. The text is logged and acknowledged; delivery to the
// operator happens out of band.
func (h *Handler) TranscriptionCallback(c *gin.Context) {
	if err := h.verifySignature(c); err != nil {
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		errors.Forbidden(c, "invalid webhook signature")
		return
	}

	callSid := c.PostForm("CallSid")
	status := c.PostForm("TranscriptionStatus")
	text := c.PostForm("TranscriptionText")

	h.logger.Info("transcription received",
		zap.String("call_sid", callSid),
		zap.String("status", status),
		zap.Int("text_length", len(text)),
	)
	c.Status(http.StatusOK)
}

func (h *Handler) renderDecision(c *gin.Context, s routing.Settings, d routing.Decision, callSid, from, to string) {
	resp := &twiml.Response{}

	switch d.Destination {
	case routing.DestAgent:
		agentID := s.AgentID
		if agentID == "" {
			agentID = h.cfg.DefaultAgentID
		}
		if agentID == "" {
			// Routed to the agent but no agent is configured anywhere.
			h.logger.Error("no agent configured", zap.String("call_sid", callSid))
			resp.Append(
				twiml.Say{Text: "We are unable to take your call right now. Please try again later."},
				twiml.Hangup{},
			)
			break
		}

		token, err := auth.IssueStreamToken(h.cfg.StreamTokenSecret, callSid, time.Duration(h.cfg.StreamTokenTTLMin)*time.Minute)
		if err != nil {
			h.logger.Error("stream token issue failed", zap.Error(err), zap.String("call_sid", callSid))
			errors.InternalError(c, err, h.logger)
			return
		}

		if d.PlayWelcome {
			resp.Append(h.welcomePrompt())
		}
		resp.Append(twiml.Connect{Stream: &twiml.Stream{
			URL: h.streamURL(token),
			Parameters: []twiml.Parameter{
				{Name: "agentId", Value: agentID},
				{Name: "contextTag", Value: string(d.ContextTag)},
				{Name: "caller", Value: from},
				{Name: "account", Value: to},
			},
		}})
		// When the agent handshake fails the bridge closes the media stream
		// and the provider resumes the document here. Without these verbs
		// the caller would hear silence and then a drop.
		resp.Append(
			twiml.Say{Text: "We are sorry, we could not connect you. Please try again later."},
			twiml.Hangup{},
		)

	case routing.DestHumanForward:
		if s.ForwardingNumber == "" {
			// Forwarding was selected but never configured.
			h.logger.Error("forwarding number missing", zap.String("call_sid", callSid))
			resp.Append(
				twiml.Say{Text: "We are unable to take your call right now. Please try again later."},
				twiml.Hangup{},
			)
			break
		}
		if d.PlayWelcome {
			resp.Append(h.welcomePrompt())
		}
		if h.cfg.PreDialAudioURL != "" {
			resp.Append(twiml.Play{URL: h.cfg.PreDialAudioURL})
		}
		resp.Append(twiml.Dial{
			Action:  "/voice/dial-status",
			Method:  "POST",
			Timeout: h.cfg.ForwardTimeoutSec,
			Number:  &twiml.Number{Value: s.ForwardingNumber},
		})

	case routing.DestVoicemail:
		if h.cfg.VoicemailURL != "" {
			resp.Append(twiml.Redirect{Method: "POST", URL: h.cfg.VoicemailURL})
			break
		}
		resp.Append(
			twiml.Say{Text: "Please leave a message after the tone."},
			twiml.Record{
				MaxLength:          120,
				PlayBeep:           true,
				Transcribe:         true,
				TranscribeCallback: h.cfg.TranscriptionCallbackURL,
			},
		)

	case routing.DestTranscriptionOnly:
		resp.Append(
			twiml.Say{Text: "No one is available to take your call. Please leave a message and we will read it shortly."},
			twiml.Record{
				MaxLength:          120,
				PlayBeep:           true,
				Transcribe:         true,
				TranscribeCallback: h.cfg.TranscriptionCallbackURL,
			},
		)

	default:
		resp.Append(twiml.Hangup{})
	}

	respondTwiML(c, resp)
}

// welcomePrompt is the greeting verb: the configured audio file when
// present, a spoken line otherwise.
func (h *Handler) welcomePrompt() interface{} {
	if h.cfg.WelcomeAudioURL != "" {
		return twiml.Play{URL: h.cfg.WelcomeAudioURL}
	}
	return twiml.Say{Text: "Thank you for calling. Connecting you now."}
}

// streamURL derives the wss stream endpoint from the public base URL.
func (h *Handler) streamURL(token string) string {
	base := h.cfg.PublicBaseURL
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return strings.TrimRight(base, "/") + "/stream/ws?token=" + url.QueryEscape(token)
}

func (h *Handler) verifySignature(c *gin.Context) error {
	if err := c.Request.ParseForm(); err != nil {
		return err
	}
	fullURL := strings.TrimRight(h.cfg.PublicBaseURL, "/") + c.Request.URL.RequestURI()
	return webhook.VerifyTwilioSignature(
		h.cfg.TwilioAuthToken,
		fullURL,
		c.Request.PostForm,
		c.GetHeader("X-Twilio-Signature"),
	)
}

func respondTwiML(c *gin.Context, resp *twiml.Response) {
	out, err := resp.Render()
	if err != nil {
		errors.InternalError(c, err, logger.Log)
		return
	}
	c.Data(http.StatusOK, "application/xml", out)
}
