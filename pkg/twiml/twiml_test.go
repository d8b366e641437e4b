package twiml

import (
	"strings"
	"testing"
)

func render(t *testing.T, r *Response) string {
	t.Helper()
	out, err := r.Render()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return string(out)
}

func TestRenderStreamResponse(t *testing.T) {
	resp := (&Response{}).Append(
		Play{URL: "https://cdn.example.com/welcome.mp3"},
		Connect{Stream: &Stream{
			URL: "wss://bridge.example.com/stream/ws?token=abc",
			Parameters: []Parameter{
				{Name: "agentId", Value: "agent-1"},
				{Name: "contextTag", Value: "in-hours"},
			},
		}},
	)

	out := render(t, resp)
	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		"<Response>",
		"<Play>https://cdn.example.com/welcome.mp3</Play>",
		`<Stream url="wss://bridge.example.com/stream/ws?token=abc">`,
		`<Parameter name="agentId" value="agent-1">`,
		`<Parameter name="contextTag" value="in-hours">`,
		"</Connect>",
		"</Response>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderDialResponse(t *testing.T) {
	resp := (&Response{}).Append(
		Say{Text: "Connecting you now."},
		Dial{
			Action:  "/voice/dial-status",
			Method:  "POST",
			Timeout: 20,
			Number:  &Number{Value: "+14155550100"},
		},
	)

	out := render(t, resp)
	for _, want := range []string{
		"<Say>Connecting you now.</Say>",
		`<Dial action="/voice/dial-status" method="POST" timeout="20">`,
		"<Number>+14155550100</Number>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderHangupAndRecord(t *testing.T) {
	out := render(t, (&Response{}).Append(
		Say{Text: "Please leave a message."},
		Record{MaxLength: 120, PlayBeep: true, Transcribe: true, TranscribeCallback: "/voice/transcription"},
	))
	for _, want := range []string{
		`maxLength="120"`,
		`playBeep="true"`,
		`transcribeCallback="/voice/transcription"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out = render(t, (&Response{}).Append(Hangup{}))
	if !strings.Contains(out, "<Hangup>") {
		t.Errorf("output missing Hangup verb:\n%s", out)
	}
}
