package routing

import (
	"testing"
	"time"
)

// Mon 2024-03-04, 11:00 and 23:00 local
var (
	insideHours  = time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC)
	outsideHours = time.Date(2024, 3, 4, 23, 0, 0, 0, time.UTC)
)

func weekdayHours() *BusinessHours {
	return &BusinessHours{
		StartHour: 9,
		EndHour:   18,
		Weekdays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
	}
}

func TestDecideExhaustive(t *testing.T) {
	// Every combination of mode, forwarding, hours and leg must produce one
	// of the defined destinations, and a fallback leg must never forward.
	modes := []AgentMode{ModeAuto, ModeAlwaysOn, ModeAlwaysOff}
	valid := map[Destination]bool{
		DestHumanForward:      true,
		DestAgent:             true,
		DestVoicemail:         true,
		DestHangup:            true,
		DestTranscriptionOnly: true,
	}

	for _, mode := range modes {
		for _, forwarding := range []bool{true, false} {
			for _, inHours := range []bool{true, false} {
				for _, fallback := range []bool{true, false} {
					s := Settings{
						AgentMode:         mode,
						ForwardingEnabled: forwarding,
						ForwardingNumber:  "+14155550100",
						FallbackPolicy:    FallbackVoicemail,
						Hours:             weekdayHours(),
						AgentID:           "agent-1",
						AgentAPIKey:       "key",
					}
					now := insideHours
					if !inHours {
						now = outsideHours
					}

					d := Decide(s, now, fallback)
					if !valid[d.Destination] {
						t.Errorf("mode=%s fwd=%v inHours=%v fallback=%v: undefined destination %q",
							mode, forwarding, inHours, fallback, d.Destination)
					}
					if fallback && d.Destination == DestHumanForward {
						t.Errorf("mode=%s fwd=%v inHours=%v: fallback leg returned human-forward",
							mode, forwarding, inHours)
					}
					if d.Reason == "" {
						t.Errorf("mode=%s fwd=%v inHours=%v fallback=%v: empty reason",
							mode, forwarding, inHours, fallback)
					}
					welcome := d.Destination == DestHumanForward || d.Destination == DestAgent
					if d.PlayWelcome != welcome {
						t.Errorf("dest=%s: PlayWelcome=%v", d.Destination, d.PlayWelcome)
					}
				}
			}
		}
	}
}

func TestDecideScenarios(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		now      time.Time
		fallback bool
		wantDest Destination
		wantTag  ContextTag
	}{
		{
			name: "auto mode, forwarding disabled, out of hours",
			settings: Settings{
				AgentMode: ModeAuto,
				Hours:     weekdayHours(),
				AgentID:   "agent-1",
			},
			now:      outsideHours,
			wantDest: DestAgent,
			wantTag:  ContextOutOfHours,
		},
		{
			name: "auto mode, forwarding disabled, in hours",
			settings: Settings{
				AgentMode: ModeAuto,
				Hours:     weekdayHours(),
				AgentID:   "agent-1",
			},
			now:      insideHours,
			wantDest: DestAgent,
			wantTag:  ContextInHours,
		},
		{
			name: "auto mode, forwarding enabled, in hours",
			settings: Settings{
				AgentMode:         ModeAuto,
				ForwardingEnabled: true,
				ForwardingNumber:  "+14155550100",
				Hours:             weekdayHours(),
			},
			now:      insideHours,
			wantDest: DestHumanForward,
		},
		{
			name: "always-on overrides forwarding out of hours",
			settings: Settings{
				AgentMode:         ModeAlwaysOn,
				ForwardingEnabled: true,
				Hours:             weekdayHours(),
				AgentID:           "agent-1",
			},
			now:      outsideHours,
			wantDest: DestAgent,
			wantTag:  ContextOutOfHours,
		},
		{
			name: "always-off forwards even out of hours",
			settings: Settings{
				AgentMode:         ModeAlwaysOff,
				ForwardingEnabled: true,
				ForwardingNumber:  "+14155550100",
				Hours:             weekdayHours(),
			},
			now:      outsideHours,
			wantDest: DestHumanForward,
		},
		{
			name: "fallback leg with agent configured ignores mode and hours",
			settings: Settings{
				AgentMode:         ModeAlwaysOff,
				ForwardingEnabled: true,
				Hours:             weekdayHours(),
				AgentID:           "agent-1",
			},
			now:      insideHours,
			fallback: true,
			wantDest: DestAgent,
			wantTag:  ContextMissedCall,
		},
		{
			name: "fallback leg without agent uses voicemail policy",
			settings: Settings{
				AgentMode:      ModeAuto,
				FallbackPolicy: FallbackVoicemail,
			},
			fallback: true,
			now:      insideHours,
			wantDest: DestVoicemail,
		},
		{
			name: "fallback leg without agent uses hangup policy",
			settings: Settings{
				AgentMode:      ModeAuto,
				FallbackPolicy: FallbackHangup,
			},
			fallback: true,
			now:      insideHours,
			wantDest: DestHangup,
		},
		{
			name: "fallback leg message policy records a message",
			settings: Settings{
				AgentMode:      ModeAuto,
				FallbackPolicy: FallbackMessage,
			},
			fallback: true,
			now:      insideHours,
			wantDest: DestTranscriptionOnly,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.settings, tt.now, tt.fallback)
			if d.Destination != tt.wantDest {
				t.Errorf("destination = %q, want %q (reason %q)", d.Destination, tt.wantDest, d.Reason)
			}
			if d.ContextTag != tt.wantTag {
				t.Errorf("context tag = %q, want %q", d.ContextTag, tt.wantTag)
			}
		})
	}
}

func TestBusinessHours(t *testing.T) {
	tests := []struct {
		name  string
		hours *BusinessHours
		at    time.Time
		want  bool
	}{
		{"nil hours always in", nil, outsideHours, true},
		{"zero hours always in", &BusinessHours{}, outsideHours, true},
		{"inside window", weekdayHours(), insideHours, true},
		{"outside window", weekdayHours(), outsideHours, false},
		{
			"inactive weekday",
			weekdayHours(),
			time.Date(2024, 3, 3, 11, 0, 0, 0, time.UTC), // Sunday
			false,
		},
		{
			"overnight window before midnight",
			&BusinessHours{StartHour: 21, EndHour: 6},
			outsideHours,
			true,
		},
		{
			"overnight window after midnight",
			&BusinessHours{StartHour: 21, EndHour: 6},
			time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC),
			true,
		},
		{
			"overnight window daytime",
			&BusinessHours{StartHour: 21, EndHour: 6},
			insideHours,
			false,
		},
		{
			"garbage hours treated as always in",
			&BusinessHours{StartHour: -3, EndHour: 99},
			outsideHours,
			true,
		},
		{
			"weekday-only hours honored on active day",
			&BusinessHours{Weekdays: []time.Weekday{time.Monday}},
			outsideHours, // Monday 23:00, no hour window configured
			true,
		},
		{
			"weekday-only hours honored on inactive day",
			&BusinessHours{Weekdays: []time.Weekday{time.Monday}},
			time.Date(2024, 3, 3, 11, 0, 0, 0, time.UTC), // Sunday
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.hours.Contains(tt.at); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}
