package agent

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Session is one live WebSocket conversation with the agent service.
// Writes are serialized; reads belong to a single reader goroutine.
type Session struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	logger    *zap.Logger
}

func newSession(conn *websocket.Conn, logger *zap.Logger) *Session {
	return &Session{conn: conn, logger: logger}
}

// Outbound message shapes.

type initiationMessage struct {
	Type                       string              `json:"type"`
	ConversationConfigOverride *conversationConfig `json:"conversation_config_override,omitempty"`
}

type conversationConfig struct {
	Agent agentOverride `json:"agent"`
}

type agentOverride struct {
	Prompt promptOverride `json:"prompt"`
}

type promptOverride struct {
	Prompt string `json:"prompt"`
}

type audioChunkMessage struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

type pongMessage struct {
	Type    string `json:"type"`
	EventID int    `json:"event_id"`
}

// Event is one inbound message from the agent service, distinguished by its
// type field. Audio arrives either nested in an audio_event or flat on the
// message; both shapes occur in the wild and both are accepted.
type Event struct {
	Type        string      `json:"type"`
	AudioEvent  *AudioEvent `json:"audio_event,omitempty"`
	AudioBase64 string      `json:"audio_base_64,omitempty"`
	PingEvent   *PingEvent  `json:"ping_event,omitempty"`

	InitiationMetadata *InitiationMetadata `json:"conversation_initiation_metadata_event,omitempty"`
}

// AudioEvent carries one base64 PCM chunk from the agent.
type AudioEvent struct {
	AudioBase64 string `json:"audio_base_64"`
	EventID     int    `json:"event_id"`
}

// PingEvent is a keepalive probe that expects a pong with the same event id.
type PingEvent struct {
	EventID int `json:"event_id"`
	PingMs  int `json:"ping_ms"`
}

// InitiationMetadata is the upstream's handshake acknowledgement carrying the
// conversation id and negotiated audio formats.
type InitiationMetadata struct {
	ConversationID    string `json:"conversation_id"`
	AgentOutputFormat string `json:"agent_output_audio_format"`
	UserInputFormat   string `json:"user_input_audio_format"`
}

// Audio returns the base64 PCM payload of an audio event, accepting both
// the nested and the flat message shape.
func (e *Event) Audio() (string, bool) {
	if e.AudioEvent != nil && e.AudioEvent.AudioBase64 != "" {
		return e.AudioEvent.AudioBase64, true
	}
	if e.AudioBase64 != "" {
		return e.AudioBase64, true
	}
	return "", false
}

// SendContext sends the conversation-initiation message carrying free-text
// persona/script guidance. The upstream offers no acknowledgement for it, so
// callers must treat a failure as non-fatal to the session.
func (s *Session) SendContext(contextText string) error {
	msg := initiationMessage{
		Type: "conversation_initiation_client_data",
	}
	if contextText != "" {
		msg.ConversationConfigOverride = &conversationConfig{
			Agent: agentOverride{Prompt: promptOverride{Prompt: contextText}},
		}
	}
	return s.writeJSON(msg)
}

// SendAudio forwards one base64 PCM chunk of caller audio to the agent.
func (s *Session) SendAudio(b64PCM string) error {
	return s.writeJSON(audioChunkMessage{UserAudioChunk: b64PCM})
}

// SendPong answers a ping event.
func (s *Session) SendPong(eventID int) error {
	return s.writeJSON(pongMessage{Type: "pong", EventID: eventID})
}

// ReadEvent blocks for the next inbound message. It returns an error when
// the socket closes or the payload is not parseable.
func (s *Session) ReadEvent() (*Event, error) {
	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("agent: read: %w", err)
	}

	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		return nil, fmt.Errorf("agent: parse event: %w", err)
	}
	return &ev, nil
}

// Close shuts the socket down. Safe to call any number of times and from
// any goroutine.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		if err := s.conn.Close(); err != nil && s.logger != nil {
			s.logger.Debug("agent socket close", zap.Error(err))
		}
	})
	return nil
}

func (s *Session) writeJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("agent: marshal message: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("agent: write: %w", err)
	}
	return nil
}
