package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// Encoding identifies the codec of an audio frame.
type Encoding string

const (
	EncodingMuLaw Encoding = "mulaw"
	EncodingPCM16 Encoding = "pcm16"
)

// Sample rates used by the two legs of the bridge.
const (
	TelephonyRate = 8000
	AgentRate     = 16000
)

// ErrOddPCMBuffer reports a PCM buffer that does not contain whole samples.
var ErrOddPCMBuffer = errors.New("audio: pcm buffer length must be even")

// Frame is a single chunk of audio tagged with its codec and sample rate so
// conversions can check their preconditions instead of trusting the caller.
type Frame struct {
	Data       []byte
	Encoding   Encoding
	SampleRate int
}

// TelephonyToAgent converts one base64 μ-law payload from the telephony leg
// into a 16kHz PCM frame ready for the agent leg.
func TelephonyToAgent(payload string) (Frame, error) {
	muLaw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("audio: decode media payload: %w", err)
	}

	pcm8k := DecodeMuLawToPCM16(muLaw)
	pcm16k, err := ResamplePCM16(pcm8k, TelephonyRate, AgentRate)
	if err != nil {
		return Frame{}, fmt.Errorf("audio: upsample telephony frame: %w", err)
	}

	return Frame{Data: pcm16k, Encoding: EncodingPCM16, SampleRate: AgentRate}, nil
}

// AgentToTelephony converts one PCM frame from the agent leg into a base64
// μ-law payload ready for the telephony leg.
func AgentToTelephony(f Frame) (string, error) {
	if f.Encoding != EncodingPCM16 {
		return "", fmt.Errorf("audio: agent frame must be pcm16, got %q", f.Encoding)
	}

	pcm8k, err := ResamplePCM16(f.Data, f.SampleRate, TelephonyRate)
	if err != nil {
		return "", fmt.Errorf("audio: downsample agent frame: %w", err)
	}

	muLaw, err := EncodePCM16ToMuLaw(pcm8k)
	if err != nil {
		return "", fmt.Errorf("audio: encode agent frame: %w", err)
	}

	return base64.StdEncoding.EncodeToString(muLaw), nil
}
