// Package storage resolves where recorded messages live. Voicemail and
// message recordings stay with the telephony provider; the proxy
// driver turns a call SID into the provider's recording URL, the local
// driver serves downloaded copies for air-gapped deployments.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

type Driver interface {
	GetRecordingURL(callSID string) (string, error)
}

// NewDriver builds the configured driver. Unknown names are an error
// rather than a silent default.
func NewDriver(name, accountSID, localBasePath string) (Driver, error) {
	switch name {
	case "", "twilio-proxy":
		return NewTwilioProxyDriver(accountSID), nil
	case "local":
		return NewLocalDriver(localBasePath), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", name)
	}
}

// TwilioProxyDriver points at the provider's recording resource.
type TwilioProxyDriver struct {
	baseURL string
}

func NewTwilioProxyDriver(accountSID string) *TwilioProxyDriver {
	return &TwilioProxyDriver{
		baseURL: fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s", accountSID),
	}
}

func (d *TwilioProxyDriver) GetRecordingURL(callSID string) (string, error) {
	if callSID == "" {
		return "", fmt.Errorf("callSID is required")
	}
	return fmt.Sprintf("%s/Calls/%s/Recordings.json", d.baseURL, callSID), nil
}

// LocalDriver serves recordings previously downloaded to disk.
type LocalDriver struct {
	basePath string
}

func NewLocalDriver(basePath string) *LocalDriver {
	if basePath == "" {
		basePath = "/data/audio"
	}
	return &LocalDriver{basePath: basePath}
}

func (d *LocalDriver) GetRecordingURL(callSID string) (string, error) {
	if callSID == "" {
		return "", fmt.Errorf("callSID is required")
	}
	return fmt.Sprintf("/recordings/%s.mp3", callSID), nil
}

// Path returns the on-disk location for a recording, creating the
// directory on first use.
func (d *LocalDriver) Path(callSID string) (string, error) {
	if err := os.MkdirAll(d.basePath, 0755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}
	return filepath.Join(d.basePath, callSID+".mp3"), nil
}
