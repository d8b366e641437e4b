package audio

import (
	"encoding/base64"
	"testing"
)

func TestTelephonyToAgent(t *testing.T) {
	// 160 μ-law samples = one 20ms telephony frame
	muLaw := make([]byte, 160)
	for i := range muLaw {
		muLaw[i] = 0xFF // silence
	}

	frame, err := TelephonyToAgent(base64.StdEncoding.EncodeToString(muLaw))
	if err != nil {
		t.Fatalf("TelephonyToAgent error: %v", err)
	}
	if frame.Encoding != EncodingPCM16 {
		t.Errorf("encoding = %q, want %q", frame.Encoding, EncodingPCM16)
	}
	if frame.SampleRate != AgentRate {
		t.Errorf("sample rate = %d, want %d", frame.SampleRate, AgentRate)
	}
	// 160 samples at 8kHz become 320 samples at 16kHz, 2 bytes each
	if len(frame.Data) != 640 {
		t.Errorf("frame size = %d bytes, want 640", len(frame.Data))
	}
}

func TestTelephonyToAgentRejectsBadBase64(t *testing.T) {
	if _, err := TelephonyToAgent("not!!base64"); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestAgentToTelephony(t *testing.T) {
	frame := Frame{
		Data:       make([]byte, 640), // 320 samples at 16kHz
		Encoding:   EncodingPCM16,
		SampleRate: AgentRate,
	}

	payload, err := AgentToTelephony(frame)
	if err != nil {
		t.Fatalf("AgentToTelephony error: %v", err)
	}
	muLaw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		t.Fatalf("payload is not valid base64: %v", err)
	}
	if len(muLaw) != 160 {
		t.Errorf("payload = %d μ-law samples, want 160", len(muLaw))
	}
}

func TestAgentToTelephonyRejectsWrongEncoding(t *testing.T) {
	frame := Frame{Data: []byte{0xFF}, Encoding: EncodingMuLaw, SampleRate: TelephonyRate}
	if _, err := AgentToTelephony(frame); err == nil {
		t.Fatal("expected error for non-pcm frame")
	}
}

func TestAgentToTelephonyRejectsOddBuffer(t *testing.T) {
	frame := Frame{Data: []byte{1, 2, 3}, Encoding: EncodingPCM16, SampleRate: AgentRate}
	if _, err := AgentToTelephony(frame); err == nil {
		t.Fatal("expected error for odd-length pcm frame")
	}
}
