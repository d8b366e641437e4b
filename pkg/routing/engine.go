package routing

import "time"

// AgentMode controls when calls are handed to the AI voice agent.
type AgentMode string

const (
	ModeAuto      AgentMode = "auto"
	ModeAlwaysOn  AgentMode = "always-on"
	ModeAlwaysOff AgentMode = "always-off"
)

// Destination is where a call-control event sends the call next.
type Destination string

const (
	DestHumanForward      Destination = "human-forward"
	DestAgent             Destination = "agent"
	DestVoicemail         Destination = "voicemail"
	DestHangup            Destination = "hangup"
	DestTranscriptionOnly Destination = "transcription-only"
)

// ContextTag tells the agent which opening persona/script to use.
type ContextTag string

const (
	ContextInHours    ContextTag = "in-hours"
	ContextOutOfHours ContextTag = "out-of-hours"
	ContextMissedCall ContextTag = "missed-call"
)

// FallbackPolicy is what happens when a human-forward attempt goes
// unanswered and no agent is configured.
type FallbackPolicy string

const (
	FallbackVoicemail FallbackPolicy = "voicemail"
	FallbackHangup    FallbackPolicy = "hangup"
	FallbackMessage   FallbackPolicy = "message"
)

// BusinessHours is the operator's staffed window. A nil or zero value means
// the operator is always considered in hours.
type BusinessHours struct {
	StartHour int            `json:"start_hour" bson:"start_hour"`
	EndHour   int            `json:"end_hour" bson:"end_hour"`
	Weekdays  []time.Weekday `json:"weekdays,omitempty" bson:"weekdays,omitempty"`
}

// Contains reports whether t falls inside the staffed window. Missing or
// nonsense hour fields default to always-in-hours so a misconfigured
// operator still reaches a human.
func (h *BusinessHours) Contains(t time.Time) bool {
	if h == nil {
		return true
	}

	// The weekday filter applies even when the hour window is unset; an
	// operator may staff whole days only.
	if len(h.Weekdays) > 0 {
		active := false
		for _, d := range h.Weekdays {
			if d == t.Weekday() {
				active = true
				break
			}
		}
		if !active {
			return false
		}
	}

	if h.StartHour == 0 && h.EndHour == 0 {
		return true
	}
	if h.StartHour < 0 || h.StartHour > 23 || h.EndHour < 0 || h.EndHour > 24 {
		return true
	}

	hour := t.Hour()
	if h.StartHour < h.EndHour {
		return hour >= h.StartHour && hour < h.EndHour
	}
	// Window crosses midnight (e.g. 21 -> 6)
	return hour >= h.StartHour || hour < h.EndHour
}

// Settings is the operator configuration the decision runs over. It is
// supplied by the external settings subsystem and read-only here.
type Settings struct {
	AgentMode         AgentMode      `json:"agent_mode" bson:"agent_mode"`
	ForwardingEnabled bool           `json:"forwarding_enabled" bson:"forwarding_enabled"`
	ForwardingNumber  string         `json:"forwarding_number,omitempty" bson:"forwarding_number,omitempty"`
	FallbackPolicy    FallbackPolicy `json:"fallback_policy" bson:"fallback_policy"`
	Hours             *BusinessHours `json:"business_hours,omitempty" bson:"business_hours,omitempty"`

	AgentID     string `json:"agent_id,omitempty" bson:"agent_id,omitempty"`
	AgentAPIKey string `json:"agent_api_key,omitempty" bson:"agent_api_key,omitempty"`

	// DisableAgentContext suppresses the conversation-initiation context
	// message on the agent leg. The upstream contract for that message has
	// been unreliable; operators can toggle it per account.
	DisableAgentContext bool `json:"disable_agent_context,omitempty" bson:"disable_agent_context,omitempty"`
}

// AgentConfigured reports whether the settings carry an agent identity.
func (s Settings) AgentConfigured() bool {
	return s.AgentID != ""
}

// Decision is the outcome of one call-control event.
type Decision struct {
	Destination Destination
	Reason      string
	PlayWelcome bool
	ContextTag  ContextTag // set only when Destination is DestAgent
}

// Decide routes one call-control event. It is pure: the same settings, time
// and leg always produce the same decision, and no input can make it fail.
//
// A fallback leg (a prior forward attempt went unanswered) never forwards
// again; that would loop the call.
func Decide(s Settings, now time.Time, isFallbackLeg bool) Decision {
	inHours := s.Hours.Contains(now)

	if isFallbackLeg {
		if s.AgentConfigured() {
			return Decision{
				Destination: DestAgent,
				Reason:      "forward unanswered, agent configured",
				PlayWelcome: true,
				ContextTag:  ContextMissedCall,
			}
		}
		switch s.FallbackPolicy {
		case FallbackHangup:
			return Decision{Destination: DestHangup, Reason: "forward unanswered, fallback policy hangup"}
		case FallbackMessage:
			return Decision{Destination: DestTranscriptionOnly, Reason: "forward unanswered, fallback policy message"}
		default:
			return Decision{Destination: DestVoicemail, Reason: "forward unanswered, fallback policy voicemail"}
		}
	}

	if s.AgentMode == ModeAlwaysOff {
		return Decision{
			Destination: DestHumanForward,
			Reason:      "agent mode always-off",
			PlayWelcome: true,
		}
	}
	if s.ForwardingEnabled && inHours {
		return Decision{
			Destination: DestHumanForward,
			Reason:      "forwarding enabled within business hours",
			PlayWelcome: true,
		}
	}

	// Remaining cases all go to the agent: mode always-on, or mode auto with
	// forwarding disabled or outside business hours.
	tag := ContextInHours
	reason := "agent mode " + string(s.AgentMode)
	if !inHours {
		tag = ContextOutOfHours
		reason = "outside business hours"
	}
	return Decision{
		Destination: DestAgent,
		Reason:      reason,
		PlayWelcome: true,
		ContextTag:  tag,
	}
}
