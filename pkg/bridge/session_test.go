package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type fakeTelephony struct {
	in        chan []byte
	mu        sync.Mutex
	writes    [][]byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTelephony() *fakeTelephony {
	return &fakeTelephony{
		in:     make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (f *fakeTelephony) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-f.in:
		return websocket.TextMessage, msg, nil
	case <-f.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (f *fakeTelephony) WriteMessage(messageType int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("use of closed connection")
	default:
	}
	if messageType == websocket.TextMessage {
		f.mu.Lock()
		f.writes = append(f.writes, data)
		f.mu.Unlock()
	}
	return nil
}

func (f *fakeTelephony) SetReadDeadline(time.Time) error     { return nil }
func (f *fakeTelephony) SetPongHandler(func(string) error)   {}
func (f *fakeTelephony) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTelephony) sentEvents(t *testing.T) []telephonyEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	events := make([]telephonyEvent, 0, len(f.writes))
	for _, raw := range f.writes {
		var ev telephonyEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("unparseable outbound event: %v", err)
		}
		events = append(events, ev)
	}
	return events
}

type fakeAgent struct {
	mu        sync.Mutex
	audio     []string
	contexts  []string
	pongs     []int
	events    chan *AgentEvent
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		events: make(chan *AgentEvent, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeAgent) SendContext(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = append(f.contexts, text)
	return nil
}

func (f *fakeAgent) SendAudio(b64 string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, b64)
	return nil
}

func (f *fakeAgent) SendPong(eventID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pongs = append(f.pongs, eventID)
	return nil
}

func (f *fakeAgent) ReadEvent() (*AgentEvent, error) {
	select {
	case ev := <-f.events:
		return ev, nil
	case <-f.closed:
		return nil, errors.New("agent connection closed")
	}
}

func (f *fakeAgent) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeAgent) audioCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.audio)
}

func startEvent(callSID string) []byte {
	raw, _ := json.Marshal(telephonyEvent{
		Event: "start",
		Start: &startPayload{
			StreamSid: "MZ0001",
			CallSid:   callSID,
			CustomParameters: map[string]string{
				"agentId":    "agent-1",
				"contextTag": "in-hours",
				"caller":     "+14155550100",
				"account":    "+14155550199",
			},
		},
	})
	return raw
}

func mediaEvent(payload string) []byte {
	raw, _ := json.Marshal(telephonyEvent{
		Event: "media",
		Media: &mediaPayload{Payload: payload},
	})
	return raw
}

func validPayload() string {
	frame := make([]byte, 160)
	for i := range frame {
		frame[i] = 0xFF
	}
	return base64.StdEncoding.EncodeToString(frame)
}

func runSession(t *testing.T, conn *fakeTelephony, agent *fakeAgent) (*Session, *int) {
	t.Helper()
	closes := 0
	dial := func(ctx context.Context, cfg SessionConfig) (AgentSession, error) {
		return agent, nil
	}
	sess := NewSession("CA1234", conn, dial, time.Second, zap.NewNop(), func(*Session) { closes++ })
	sess.Run()
	return sess, &closes
}

func TestSessionRelaysMediaUntilStop(t *testing.T) {
	conn := newFakeTelephony()
	agent := newFakeAgent()

	conn.in <- []byte(`{"event":"connected"}`)
	conn.in <- startEvent("CA1234")
	payload := validPayload()
	for i := 0; i < 100; i++ {
		conn.in <- mediaEvent(payload)
	}
	conn.in <- []byte(`{"event":"stop","streamSid":"MZ0001"}`)

	sess, closes := runSession(t, conn, agent)

	snap := sess.Metrics().Snapshot()
	if snap.TelephonyFramesReceived != 100 {
		t.Errorf("telephony frames received = %d, want 100", snap.TelephonyFramesReceived)
	}
	if snap.AgentFramesSent != 100 {
		t.Errorf("agent frames sent = %d, want 100", snap.AgentFramesSent)
	}
	if got := agent.audioCount(); got != 100 {
		t.Errorf("agent received %d audio chunks, want 100", got)
	}
	if snap.FrameErrors != 0 {
		t.Errorf("frame errors = %d, want 0", snap.FrameErrors)
	}
	if *closes != 1 {
		t.Errorf("teardown ran %d times, want exactly 1", *closes)
	}
	if sess.State() != StateClosed {
		t.Errorf("state = %s, want closed", sess.State())
	}
}

func TestSessionDropsMalformedFrame(t *testing.T) {
	conn := newFakeTelephony()
	agent := newFakeAgent()

	conn.in <- startEvent("CA1234")
	payload := validPayload()
	for i := 0; i < 5; i++ {
		conn.in <- mediaEvent(payload)
	}
	conn.in <- mediaEvent("not!!base64")
	for i := 0; i < 4; i++ {
		conn.in <- mediaEvent(payload)
	}
	conn.in <- []byte(`{"event":"stop"}`)

	sess, _ := runSession(t, conn, agent)

	snap := sess.Metrics().Snapshot()
	if snap.FrameErrors != 1 {
		t.Errorf("frame errors = %d, want 1", snap.FrameErrors)
	}
	if got := agent.audioCount(); got != 9 {
		t.Errorf("agent received %d audio chunks, want 9", got)
	}
	if snap.TelephonyFramesReceived != 10 {
		t.Errorf("telephony frames received = %d, want 10", snap.TelephonyFramesReceived)
	}
}

func TestSessionIgnoresMediaBeforeStart(t *testing.T) {
	conn := newFakeTelephony()
	agent := newFakeAgent()

	conn.in <- mediaEvent(validPayload())
	conn.in <- []byte(`{"event":"stop"}`)

	sess, _ := runSession(t, conn, agent)

	snap := sess.Metrics().Snapshot()
	if snap.TelephonyFramesReceived != 0 {
		t.Errorf("telephony frames received = %d, want 0", snap.TelephonyFramesReceived)
	}
	if got := agent.audioCount(); got != 0 {
		t.Errorf("agent received %d audio chunks, want 0", got)
	}
}

func TestSessionClosesOnDialFailure(t *testing.T) {
	conn := newFakeTelephony()
	closes := 0
	dial := func(ctx context.Context, cfg SessionConfig) (AgentSession, error) {
		return nil, fmt.Errorf("upstream unavailable")
	}

	conn.in <- startEvent("CA1234")
	sess := NewSession("CA1234", conn, dial, time.Second, zap.NewNop(), func(*Session) { closes++ })
	sess.Run()

	if sess.State() != StateClosed {
		t.Errorf("state = %s, want closed", sess.State())
	}
	if closes != 1 {
		t.Errorf("teardown ran %d times, want exactly 1", closes)
	}
	select {
	case <-conn.closed:
	default:
		t.Error("telephony leg left open after dial failure")
	}
}

func TestSessionForwardsAgentAudio(t *testing.T) {
	conn := newFakeTelephony()
	agent := newFakeAgent()

	pcm := make([]byte, 640)
	agent.events <- &AgentEvent{Type: "audio", AudioBase64: base64.StdEncoding.EncodeToString(pcm)}
	agent.events <- &AgentEvent{Type: "ping", PingEventID: 41}

	conn.in <- startEvent("CA1234")

	done := make(chan *Session, 1)
	go func() {
		sess, _ := runSession(t, conn, agent)
		done <- sess
	}()

	// Wait for the relayed media event to land on the telephony leg.
	deadline := time.After(2 * time.Second)
	for {
		conn.mu.Lock()
		n := len(conn.writes)
		conn.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no media event reached the telephony leg")
		case <-time.After(5 * time.Millisecond):
		}
	}

	conn.in <- []byte(`{"event":"stop"}`)
	sess := <-done

	events := conn.sentEvents(t)
	var media *telephonyEvent
	for i := range events {
		if events[i].Event == "media" {
			media = &events[i]
			break
		}
	}
	if media == nil {
		t.Fatal("no outbound media event")
	}
	if media.StreamSid != "MZ0001" {
		t.Errorf("media stream sid = %q, want MZ0001", media.StreamSid)
	}
	muLaw, err := base64.StdEncoding.DecodeString(media.Media.Payload)
	if err != nil {
		t.Fatalf("outbound payload not base64: %v", err)
	}
	if len(muLaw) != 160 {
		t.Errorf("outbound payload = %d μ-law samples, want 160", len(muLaw))
	}

	snap := sess.Metrics().Snapshot()
	if snap.AgentFramesReceived != 1 {
		t.Errorf("agent frames received = %d, want 1", snap.AgentFramesReceived)
	}
	if snap.TelephonyFramesSent != 1 {
		t.Errorf("telephony frames sent = %d, want 1", snap.TelephonyFramesSent)
	}

	agent.mu.Lock()
	pongs := append([]int(nil), agent.pongs...)
	agent.mu.Unlock()
	if len(pongs) != 1 || pongs[0] != 41 {
		t.Errorf("pongs = %v, want [41]", pongs)
	}
}

func TestSessionConfigFromStart(t *testing.T) {
	conn := newFakeTelephony()
	agent := newFakeAgent()

	conn.in <- startEvent("CA1234")
	conn.in <- []byte(`{"event":"stop"}`)

	sess, _ := runSession(t, conn, agent)

	cfg := sess.Config()
	if cfg.AgentID != "agent-1" {
		t.Errorf("agent id = %q", cfg.AgentID)
	}
	if string(cfg.ContextTag) != "in-hours" {
		t.Errorf("context tag = %q", cfg.ContextTag)
	}
	if cfg.StreamSID != "MZ0001" {
		t.Errorf("stream sid = %q", cfg.StreamSID)
	}
	if cfg.AccountNumber != "+14155550199" {
		t.Errorf("account number = %q", cfg.AccountNumber)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	conn := newFakeTelephony()
	sess := NewSession("CA9", conn, nil, time.Second, zap.NewNop(), nil)

	reg.Add(sess)
	if reg.ActiveCount() != 1 {
		t.Fatalf("active count = %d, want 1", reg.ActiveCount())
	}
	if reg.Get("CA9") != sess {
		t.Fatal("Get returned wrong session")
	}

	replacement := NewSession("CA9", newFakeTelephony(), nil, time.Second, zap.NewNop(), nil)
	reg.Add(replacement)
	reg.Remove(sess) // stale removal must not evict the replacement
	if reg.Get("CA9") != replacement {
		t.Fatal("stale Remove evicted the replacement session")
	}

	reg.Remove(replacement)
	if reg.ActiveCount() != 0 {
		t.Fatalf("active count = %d, want 0", reg.ActiveCount())
	}
}
