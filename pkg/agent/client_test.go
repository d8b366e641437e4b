package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestGetSignedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		if got := r.URL.Query().Get("agent_id"); got != "agent-1" {
			t.Errorf("agent_id = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"signed_url": "wss://upstream.example/conv?token=abc"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second, zap.NewNop())
	url, err := c.GetSignedURL(context.Background(), "agent-1", "test-key")
	if err != nil {
		t.Fatalf("GetSignedURL error: %v", err)
	}
	if url != "wss://upstream.example/conv?token=abc" {
		t.Errorf("signed url = %q", url)
	}
}

func TestGetSignedURLRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second, zap.NewNop())
	_, err := c.GetSignedURL(context.Background(), "agent-1", "bad-key")
	if !errors.Is(err, ErrUpstreamAuth) {
		t.Fatalf("error = %v, want ErrUpstreamAuth", err)
	}
}

func TestGetSignedURLEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second, zap.NewNop())
	_, err := c.GetSignedURL(context.Background(), "agent-1", "key")
	if !errors.Is(err, ErrUpstreamAuth) {
		t.Fatalf("error = %v, want ErrUpstreamAuth", err)
	}
}

func TestConnectRefused(t *testing.T) {
	c := NewClient("", time.Second, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.Connect(ctx, "ws://127.0.0.1:1/conv")
	if !errors.Is(err, ErrConnect) {
		t.Fatalf("error = %v, want ErrConnect", err)
	}
}

func TestEventAudioShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{
			name: "nested audio event",
			raw:  `{"type":"audio","audio_event":{"audio_base_64":"QUJD","event_id":7}}`,
			want: "QUJD",
			ok:   true,
		},
		{
			name: "flat audio payload",
			raw:  `{"type":"audio","audio_base_64":"WFla"}`,
			want: "WFla",
			ok:   true,
		},
		{
			name: "no audio",
			raw:  `{"type":"audio"}`,
			ok:   false,
		},
		{
			name: "initiation metadata",
			raw:  `{"type":"conversation_initiation_metadata","conversation_initiation_metadata_event":{"conversation_id":"c1","agent_output_audio_format":"pcm_16000"}}`,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev Event
			if err := json.Unmarshal([]byte(tt.raw), &ev); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			got, ok := ev.Audio()
			if ok != tt.ok || got != tt.want {
				t.Errorf("Audio() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestInitiationMessageShape(t *testing.T) {
	msg := initiationMessage{
		Type: "conversation_initiation_client_data",
		ConversationConfigOverride: &conversationConfig{
			Agent: agentOverride{Prompt: promptOverride{Prompt: "be brief"}},
		},
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed["type"] != "conversation_initiation_client_data" {
		t.Errorf("type = %v", parsed["type"])
	}
	override := parsed["conversation_config_override"].(map[string]interface{})
	agent := override["agent"].(map[string]interface{})
	prompt := agent["prompt"].(map[string]interface{})
	if prompt["prompt"] != "be brief" {
		t.Errorf("prompt = %v", prompt["prompt"])
	}
}
