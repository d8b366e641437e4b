package webhook

import (
	"net/url"
	"testing"
)

// Known-good vector from Twilio's security documentation.
const (
	vectorURL       = "https://mycompany.com/myapp.php?foo=1&bar=2"
	vectorToken     = "12345"
	vectorSignature = "RSOYDt4T1cUTdK1PDd93/VVr8B8="
)

func vectorForm() url.Values {
	return url.Values{
		"CallSid": {"CA1234567890ABCDE"},
		"Caller":  {"+12349013030"},
		"Digits":  {"1234"},
		"From":    {"+12349013030"},
		"To":      {"+18005551212"},
	}
}

func TestVerifyTwilioSignatureKnownVector(t *testing.T) {
	if err := VerifyTwilioSignature(vectorToken, vectorURL, vectorForm(), vectorSignature); err != nil {
		t.Errorf("known-good vector rejected: %v", err)
	}
}

func TestVerifyTwilioSignatureRejectsTampering(t *testing.T) {
	form := vectorForm()
	form.Set("Digits", "9999")
	if err := VerifyTwilioSignature(vectorToken, vectorURL, form, vectorSignature); err == nil {
		t.Error("tampered form accepted")
	}

	if err := VerifyTwilioSignature(vectorToken, "https://attacker.example/", vectorForm(), vectorSignature); err == nil {
		t.Error("tampered URL accepted")
	}

	if err := VerifyTwilioSignature("wrong-token", vectorURL, vectorForm(), vectorSignature); err == nil {
		t.Error("wrong auth token accepted")
	}
}

func TestVerifyTwilioSignatureMissingHeader(t *testing.T) {
	if err := VerifyTwilioSignature(vectorToken, vectorURL, vectorForm(), ""); err == nil {
		t.Error("missing signature accepted")
	}
}

func TestVerifyTwilioSignatureSkippedWithoutToken(t *testing.T) {
	if err := VerifyTwilioSignature("", vectorURL, vectorForm(), "anything"); err != nil {
		t.Errorf("verification not skipped with empty token: %v", err)
	}
}
