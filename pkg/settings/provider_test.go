package settings

import (
	"context"
	"testing"

	"github.com/troikatech/voice-bridge/pkg/routing"
)

func TestNormalizeFillsZeroValues(t *testing.T) {
	s := Normalize(routing.Settings{})
	if s.AgentMode != routing.ModeAuto {
		t.Errorf("agent mode = %q, want auto", s.AgentMode)
	}
	if s.FallbackPolicy != routing.FallbackVoicemail {
		t.Errorf("fallback policy = %q, want voicemail", s.FallbackPolicy)
	}
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	in := routing.Settings{
		AgentMode:      routing.ModeAlwaysOn,
		FallbackPolicy: routing.FallbackHangup,
	}
	s := Normalize(in)
	if s.AgentMode != routing.ModeAlwaysOn {
		t.Errorf("agent mode = %q, want always-on", s.AgentMode)
	}
	if s.FallbackPolicy != routing.FallbackHangup {
		t.Errorf("fallback policy = %q, want hangup", s.FallbackPolicy)
	}
}

func TestStaticSourceNormalizes(t *testing.T) {
	src := StaticSource{Settings: routing.Settings{AgentID: "agent-1"}}
	s, err := src.Lookup(context.Background(), "+14155550199")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if s.AgentID != "agent-1" {
		t.Errorf("agent id = %q", s.AgentID)
	}
	if s.AgentMode != routing.ModeAuto {
		t.Errorf("agent mode = %q, want auto after normalization", s.AgentMode)
	}
}
