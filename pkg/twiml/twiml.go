// Package twiml renders the small subset of Twilio voice response XML
// the bridge needs: playing prompts, dialing humans, opening media
// streams and recording voicemail.
package twiml

import (
	"bytes"
	"encoding/xml"
)

// Response is the document root. Verbs render in the order appended.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []interface{}
}

// Say speaks text to the caller.
type Say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

// Play plays an audio file by URL.
type Play struct {
	XMLName xml.Name `xml:"Play"`
	Loop    int      `xml:"loop,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

// Hangup ends the call.
type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// Redirect transfers control to another webhook URL.
type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

// Record captures caller audio, optionally with transcription.
type Record struct {
	XMLName            xml.Name `xml:"Record"`
	Action             string   `xml:"action,attr,omitempty"`
	MaxLength          int      `xml:"maxLength,attr,omitempty"`
	PlayBeep           bool     `xml:"playBeep,attr"`
	Transcribe         bool     `xml:"transcribe,attr,omitempty"`
	TranscribeCallback string   `xml:"transcribeCallback,attr,omitempty"`
}

// Dial forwards the call to a phone number. Action receives the dial
// outcome so a failed forward can be re-routed.
type Dial struct {
	XMLName xml.Name `xml:"Dial"`
	Action  string   `xml:"action,attr,omitempty"`
	Method  string   `xml:"method,attr,omitempty"`
	Timeout int      `xml:"timeout,attr,omitempty"`
	Number  *Number  `xml:"Number,omitempty"`
}

// Number is the dialed endpoint inside a Dial verb.
type Number struct {
	XMLName             xml.Name `xml:"Number"`
	StatusCallback      string   `xml:"statusCallback,attr,omitempty"`
	StatusCallbackEvent string   `xml:"statusCallbackEvent,attr,omitempty"`
	Value               string   `xml:",chardata"`
}

// Connect hands the call's media to a bidirectional stream.
type Connect struct {
	XMLName xml.Name `xml:"Connect"`
	Stream  *Stream  `xml:"Stream"`
}

// Stream opens a media stream WebSocket. Parameters arrive at the
// stream server inside the start event's customParameters.
type Stream struct {
	XMLName    xml.Name    `xml:"Stream"`
	URL        string      `xml:"url,attr"`
	Parameters []Parameter `xml:"Parameter"`
}

// Parameter is a custom key/value handed to the stream server.
type Parameter struct {
	XMLName xml.Name `xml:"Parameter"`
	Name    string   `xml:"name,attr"`
	Value   string   `xml:"value,attr"`
}

// Append adds verbs to the response and returns it for chaining.
func (r *Response) Append(verbs ...interface{}) *Response {
	r.Verbs = append(r.Verbs, verbs...)
	return r
}

// Render serializes the response with the XML declaration Twilio expects.
func (r *Response) Render() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
