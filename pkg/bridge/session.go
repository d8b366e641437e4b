package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/pkg/audio"
	"github.com/troikatech/voice-bridge/pkg/logger"
	"github.com/troikatech/voice-bridge/pkg/metrics"
	"github.com/troikatech/voice-bridge/pkg/routing"
)

// State is the lifecycle phase of one bridge session.
type State int32

const (
	StateAwaitingStart State = iota
	StateConnectingAgent
	StateRelaying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingStart:
		return "awaiting-start"
	case StateConnectingAgent:
		return "connecting-agent"
	case StateRelaying:
		return "relaying"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// AgentSession is the agent leg of the bridge. *agent.Session satisfies it;
// tests substitute fakes.
type AgentSession interface {
	SendContext(contextText string) error
	SendAudio(b64PCM string) error
	SendPong(eventID int) error
	ReadEvent() (*AgentEvent, error)
	Close() error
}

// AgentEvent mirrors the inbound agent message surface the bridge reacts to.
type AgentEvent struct {
	Type        string
	AudioBase64 string
	PingEventID int
}

// DialFunc opens the agent leg for a session: signed-URL fetch, WebSocket
// open and (when enabled) the context handshake, all bounded by ctx.
type DialFunc func(ctx context.Context, cfg SessionConfig) (AgentSession, error)

// TelephonyConn is the telephony leg of the bridge. *websocket.Conn
// satisfies it; tests substitute fakes.
type TelephonyConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// SessionConfig is fixed at the telephony "start" event and immutable for
// the life of the session.
type SessionConfig struct {
	CallSID    string
	StreamSID  string
	AgentID    string
	ContextTag routing.ContextTag
	Caller     string
	// AccountNumber is the dialed operator number, used to look up the
	// operator's agent credential when opening the agent leg.
	AccountNumber string
}

// SessionMetrics counts frames through one session. Counters are atomic
// because the two relay directions run on separate goroutines.
type SessionMetrics struct {
	StartedAt time.Time
	EndedAt   time.Time

	telephonyReceived atomic.Int64
	telephonySent     atomic.Int64
	agentReceived     atomic.Int64
	agentSent         atomic.Int64
	frameErrors       atomic.Int64
}

// Snapshot is a point-in-time copy of the session counters.
type Snapshot struct {
	TelephonyFramesReceived int64
	TelephonyFramesSent     int64
	AgentFramesReceived     int64
	AgentFramesSent         int64
	FrameErrors             int64
}

// Snapshot returns the current counter values.
func (m *SessionMetrics) Snapshot() Snapshot {
	return Snapshot{
		TelephonyFramesReceived: m.telephonyReceived.Load(),
		TelephonyFramesSent:     m.telephonySent.Load(),
		AgentFramesReceived:     m.agentReceived.Load(),
		AgentFramesSent:         m.agentSent.Load(),
		FrameErrors:             m.frameErrors.Load(),
	}
}

// Telephony media-stream envelopes (JSON text frames).

type telephonyEvent struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid,omitempty"`
	Start     *startPayload `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
}

type startPayload struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

const (
	telephonyReadTimeout = 60 * time.Second
	telephonyPingPeriod  = 25 * time.Second
)

// Session bridges one telephony media stream to one agent conversation.
// Each call owns exactly one Session; sessions never share state.
type Session struct {
	id      string
	callSID string

	telephony TelephonyConn
	dial      DialFunc

	mu    sync.Mutex // guards agent and cfg after start
	agent AgentSession
	cfg   SessionConfig

	state   atomic.Int32
	writeMu sync.Mutex // serializes telephony writes (pings + relayed media)

	handshakeTimeout time.Duration
	metrics          SessionMetrics
	closeOnce        sync.Once
	done             chan struct{}
	onClose          func(*Session)
	logger           *zap.Logger
}

// NewSession wires a just-upgraded telephony connection into a bridge
// session. callSID comes from the authenticated stream token; the start
// event is checked against it. onClose runs exactly once at teardown.
func NewSession(callSID string, conn TelephonyConn, dial DialFunc, handshakeTimeout time.Duration, log *zap.Logger, onClose func(*Session)) *Session {
	if handshakeTimeout == 0 {
		handshakeTimeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Log
	}
	id := uuid.NewString()
	s := &Session{
		id:               id,
		callSID:          callSID,
		telephony:        conn,
		dial:             dial,
		handshakeTimeout: handshakeTimeout,
		done:             make(chan struct{}),
		onClose:          onClose,
		logger:           log.With(zap.String("session_id", id[:8]), zap.String("call_sid", callSID)),
	}
	s.metrics.StartedAt = time.Now()
	return s
}

// ID returns the bridge-local session id.
func (s *Session) ID() string { return s.id }

// CallSID returns the telephony call this session belongs to.
func (s *Session) CallSID() string { return s.callSID }

// State returns the current lifecycle phase.
func (s *Session) State() State { return State(s.state.Load()) }

// Metrics exposes the per-session counters.
func (s *Session) Metrics() *SessionMetrics { return &s.metrics }

// Config returns the session configuration extracted at the start event.
func (s *Session) Config() SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Run drives the telephony read loop until the session closes. It blocks;
// callers run it on the connection's handler goroutine.
func (s *Session) Run() {
	metrics.SessionStarted()
	defer s.teardown("telephony leg closed")

	_ = s.telephony.SetReadDeadline(time.Now().Add(telephonyReadTimeout))
	s.telephony.SetPongHandler(func(string) error {
		return s.telephony.SetReadDeadline(time.Now().Add(telephonyReadTimeout))
	})
	go s.pingLoop()

	for {
		messageType, msg, err := s.telephony.ReadMessage()
		if err != nil {
			if s.State() != StateClosed && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("telephony read error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		_ = s.telephony.SetReadDeadline(time.Now().Add(telephonyReadTimeout))

		var ev telephonyEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			s.logger.Warn("unparseable telephony event", zap.Error(err))
			continue
		}

		switch ev.Event {
		case "connected":
			// Protocol preamble, nothing to do until start.
		case "start":
			if err := s.handleStart(ev); err != nil {
				s.logger.Error("agent handshake failed", zap.Error(err))
				s.teardown("agent handshake failed")
				return
			}
		case "media":
			s.handleMedia(ev)
		case "stop":
			s.teardown("telephony stop event")
			return
		default:
			// mark, dtmf and friends are irrelevant to the bridge.
		}
	}
}

func (s *Session) handleStart(ev telephonyEvent) error {
	if !s.state.CompareAndSwap(int32(StateAwaitingStart), int32(StateConnectingAgent)) {
		// Duplicate start; the first one won.
		return nil
	}
	if ev.Start == nil {
		return fmt.Errorf("bridge: start event without payload")
	}
	if ev.Start.CallSid != "" && ev.Start.CallSid != s.callSID {
		s.logger.Warn("start event call sid mismatch",
			zap.String("event_call_sid", ev.Start.CallSid))
	}

	params := ev.Start.CustomParameters
	cfg := SessionConfig{
		CallSID:       s.callSID,
		StreamSID:     ev.Start.StreamSid,
		AgentID:       params["agentId"],
		ContextTag:    routing.ContextTag(params["contextTag"]),
		Caller:        params["caller"],
		AccountNumber: params["account"],
	}

	s.logger.Info("media stream started",
		zap.String("stream_sid", cfg.StreamSID),
		zap.String("agent_id", cfg.AgentID),
		zap.String("context_tag", string(cfg.ContextTag)),
	)

	// The only waiting this session ever does: signed URL + socket open +
	// context handshake, all under one deadline so a stuck upstream cannot
	// hold the telephony leg open indefinitely.
	ctx, cancel := context.WithTimeout(context.Background(), s.handshakeTimeout)
	defer cancel()

	agentSess, err := s.dial(ctx, cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.agent = agentSess
	s.mu.Unlock()

	s.state.Store(int32(StateRelaying))
	go s.relayAgentAudio(agentSess, cfg.StreamSID)
	return nil
}

func (s *Session) handleMedia(ev telephonyEvent) {
	if s.State() != StateRelaying {
		// Media before start completes (or after close) is dropped.
		return
	}
	if ev.Media == nil {
		return
	}
	s.metrics.telephonyReceived.Add(1)

	frame, err := audio.TelephonyToAgent(ev.Media.Payload)
	if err != nil {
		// A glitched frame is dropped; the session lives on.
		s.metrics.frameErrors.Add(1)
		metrics.FrameError()
		return
	}

	s.mu.Lock()
	agentSess := s.agent
	s.mu.Unlock()
	if agentSess == nil {
		return
	}

	if err := agentSess.SendAudio(base64.StdEncoding.EncodeToString(frame.Data)); err != nil {
		s.logger.Warn("agent write failed", zap.Error(err))
		s.teardown("agent write failed")
		return
	}
	s.metrics.agentSent.Add(1)
	metrics.FrameRelayed(metrics.DirectionToAgent)
}

// relayAgentAudio pumps agent audio back to the telephony leg. It runs on
// its own goroutine; the agent socket closing for any reason tears the
// whole session down.
func (s *Session) relayAgentAudio(agentSess AgentSession, streamSID string) {
	for {
		ev, err := agentSess.ReadEvent()
		if err != nil {
			s.teardown("agent leg closed")
			return
		}

		switch ev.Type {
		case "ping":
			if err := agentSess.SendPong(ev.PingEventID); err != nil {
				s.teardown("agent write failed")
				return
			}
		case "audio":
			if ev.AudioBase64 == "" {
				continue
			}
			s.metrics.agentReceived.Add(1)
			if !s.forwardAgentAudio(ev.AudioBase64, streamSID) {
				return
			}
		case "interruption":
			// Caller barged in upstream; flush any audio the telephony side
			// has buffered for playback.
			s.writeTelephony(telephonyEvent{Event: "clear", StreamSid: streamSID})
		case "conversation_initiation_metadata":
			s.logger.Debug("agent conversation established")
		default:
			// agent_response, transcripts and other events carry no audio.
		}
	}
}

func (s *Session) forwardAgentAudio(b64PCM, streamSID string) bool {
	pcm, err := base64.StdEncoding.DecodeString(b64PCM)
	if err != nil {
		s.metrics.frameErrors.Add(1)
		metrics.FrameError()
		return true
	}

	payload, err := audio.AgentToTelephony(audio.Frame{
		Data:       pcm,
		Encoding:   audio.EncodingPCM16,
		SampleRate: audio.AgentRate,
	})
	if err != nil {
		s.metrics.frameErrors.Add(1)
		metrics.FrameError()
		return true
	}

	ok := s.writeTelephony(telephonyEvent{
		Event:     "media",
		StreamSid: streamSID,
		Media:     &mediaPayload{Payload: payload},
	})
	if !ok {
		s.teardown("telephony write failed")
		return false
	}
	s.metrics.telephonySent.Add(1)
	metrics.FrameRelayed(metrics.DirectionToTelephony)
	return true
}

func (s *Session) writeTelephony(ev telephonyEvent) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("marshal telephony event", zap.Error(err))
		return true
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.telephony.WriteMessage(websocket.TextMessage, payload); err != nil {
		return false
	}
	return true
}

func (s *Session) pingLoop() {
	ticker := time.NewTicker(telephonyPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.telephony.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				s.teardown("telephony ping failed")
				return
			}
		}
	}
}

// Close tears the session down from the outside (shutdown sweep).
func (s *Session) Close() {
	s.teardown("server shutdown")
}

// teardown closes both legs exactly once and emits the final metrics line.
func (s *Session) teardown(reason string) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)

		s.mu.Lock()
		agentSess := s.agent
		s.mu.Unlock()
		if agentSess != nil {
			_ = agentSess.Close()
		}
		_ = s.telephony.Close()

		s.metrics.EndedAt = time.Now()
		snap := s.metrics.Snapshot()
		s.logger.Info("bridge session closed",
			zap.String("reason", reason),
			zap.Duration("duration", s.metrics.EndedAt.Sub(s.metrics.StartedAt)),
			zap.Int64("telephony_frames_received", snap.TelephonyFramesReceived),
			zap.Int64("telephony_frames_sent", snap.TelephonyFramesSent),
			zap.Int64("agent_frames_received", snap.AgentFramesReceived),
			zap.Int64("agent_frames_sent", snap.AgentFramesSent),
			zap.Int64("frame_errors", snap.FrameErrors),
		)

		metrics.SessionClosed()
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}
