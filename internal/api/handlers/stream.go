package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/pkg/agent"
	"github.com/troikatech/voice-bridge/pkg/auth"
	"github.com/troikatech/voice-bridge/pkg/bridge"
	"github.com/troikatech/voice-bridge/pkg/env"
	"github.com/troikatech/voice-bridge/pkg/errors"
	"github.com/troikatech/voice-bridge/pkg/logger"
	"github.com/troikatech/voice-bridge/pkg/routing"
)

// createWebSocketUpgrader creates a secure WebSocket upgrader with origin validation
func createWebSocketUpgrader(cfg *env.Config) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")

			// In development, allow all origins
			if cfg.AppEnv == "development" {
				return true
			}

			// Telephony media streams connect without an Origin header;
			// browsers are the only clients that send one.
			if origin == "" {
				return true
			}
			if cfg.PublicBaseURL != "" && origin == cfg.PublicBaseURL {
				return true
			}

			// Log rejected origins for security monitoring
			logger.Log.Warn("WebSocket connection rejected - invalid origin",
				zap.String("origin", origin),
				zap.String("remote_addr", r.RemoteAddr),
			)
			return false
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// StreamWebSocket is the media stream endpoint the telephony provider
// connects to for a call routed to the agent. The token minted by the
// voice webhook is the sole credential; it binds the socket to one call.
func (h *Handler) StreamWebSocket(c *gin.Context) {
	callSid, err := auth.VerifyStreamToken(h.cfg.StreamTokenSecret, c.Query("token"))
	if err != nil {
		h.logger.Warn("stream token rejected",
			zap.Error(err),
			zap.String("remote_addr", c.Request.RemoteAddr),
		)
		errors.Unauthorized(c, "invalid stream token")
		return
	}

	upgrader := createWebSocketUpgrader(h.cfg)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade to WebSocket",
			zap.Error(err),
			zap.String("call_sid", callSid),
			zap.String("origin", c.GetHeader("Origin")),
			zap.String("remote_addr", c.Request.RemoteAddr),
		)
		return
	}

	h.logger.Info("media stream WebSocket established", zap.String("call_sid", callSid))

	sess := bridge.NewSession(
		callSid,
		conn,
		h.dialAgent,
		time.Duration(h.cfg.AgentHandshakeTimeoutMs)*time.Millisecond,
		h.logger,
		func(s *bridge.Session) { h.registry.Remove(s) },
	)
	h.registry.Add(sess)
	sess.Run()
}

// dialAgent opens the agent leg for a bridge session: signed URL, socket
// open and the optional context message, all within the caller's deadline.
func (h *Handler) dialAgent(ctx context.Context, cfg bridge.SessionConfig) (bridge.AgentSession, error) {
	apiKey := h.cfg.DefaultAgentAPIKey
	disableContext := false
	if h.settings != nil && cfg.AccountNumber != "" {
		if s, err := h.settings.Lookup(ctx, cfg.AccountNumber); err == nil {
			if s.AgentAPIKey != "" {
				apiKey = s.AgentAPIKey
			}
			disableContext = s.DisableAgentContext
		}
	}

	signedURL, err := h.agentClient.GetSignedURL(ctx, cfg.AgentID, apiKey)
	if err != nil {
		return nil, fmt.Errorf("signed url: %w", err)
	}

	sess, err := h.agentClient.Connect(ctx, signedURL)
	if err != nil {
		return nil, fmt.Errorf("agent connect: %w", err)
	}

	if !disableContext {
		// A failed context message degrades the conversation but does not
		// justify dropping the call.
		if err := sess.SendContext(contextText(cfg)); err != nil {
			h.logger.Warn("agent context message failed",
				zap.Error(err),
				zap.String("call_sid", cfg.CallSID),
			)
		}
	}

	return &agentSessionAdapter{sess: sess}, nil
}

// contextText renders the conversation opening context for the agent.
func contextText(cfg bridge.SessionConfig) string {
	switch cfg.ContextTag {
	case routing.ContextOutOfHours:
		return "The caller is reaching us outside business hours. Take a message or help directly if you can."
	case routing.ContextMissedCall:
		return "The caller tried to reach a person who did not answer. Apologize briefly and take over the conversation."
	default:
		return "The caller is reaching us during business hours. Assist them directly."
	}
}

// agentSessionAdapter narrows *agent.Session to the event surface the
// bridge consumes.
type agentSessionAdapter struct {
	sess *agent.Session
}

func (a *agentSessionAdapter) SendContext(text string) error { return a.sess.SendContext(text) }
func (a *agentSessionAdapter) SendAudio(b64 string) error    { return a.sess.SendAudio(b64) }
func (a *agentSessionAdapter) SendPong(eventID int) error    { return a.sess.SendPong(eventID) }
func (a *agentSessionAdapter) Close() error                  { return a.sess.Close() }

func (a *agentSessionAdapter) ReadEvent() (*bridge.AgentEvent, error) {
	ev, err := a.sess.ReadEvent()
	if err != nil {
		return nil, err
	}
	out := &bridge.AgentEvent{Type: ev.Type}
	if b64, ok := ev.Audio(); ok {
		out.AudioBase64 = b64
	}
	if ev.PingEvent != nil {
		out.PingEventID = ev.PingEvent.EventID
	}
	return out, nil
}
