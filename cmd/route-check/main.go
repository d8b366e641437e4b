// route-check runs the routing decision over a settings document from
// the command line. Useful for verifying what a given operator
// configuration does at a given time without placing a call.
//
// Usage:
//
//	route-check -settings settings.json [-at 2026-01-05T14:00:00Z] [-fallback]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/troikatech/voice-bridge/pkg/routing"
	"github.com/troikatech/voice-bridge/pkg/settings"
)

func main() {
	settingsPath := flag.String("settings", "", "path to a settings JSON document (- for stdin)")
	at := flag.String("at", "", "decision time, RFC 3339 (default now)")
	fallback := flag.Bool("fallback", false, "treat the call as a fallback leg after an unanswered forward")
	flag.Parse()

	if *settingsPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	var raw []byte
	var err error
	if *settingsPath == "-" {
		raw, err = os.ReadFile("/dev/stdin")
	} else {
		raw, err = os.ReadFile(*settingsPath)
	}
	if err != nil {
		log.Fatalf("read settings: %v", err)
	}

	var s routing.Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		log.Fatalf("parse settings: %v", err)
	}
	s = settings.Normalize(s)

	now := time.Now()
	if *at != "" {
		now, err = time.Parse(time.RFC3339, *at)
		if err != nil {
			log.Fatalf("parse -at: %v", err)
		}
	}

	decision := routing.Decide(s, now, *fallback)

	out, err := json.MarshalIndent(map[string]interface{}{
		"destination":  decision.Destination,
		"reason":       decision.Reason,
		"play_welcome": decision.PlayWelcome,
		"context_tag":  decision.ContextTag,
		"at":           now.Format(time.RFC3339),
		"fallback_leg": *fallback,
	}, "", "  ")
	if err != nil {
		log.Fatalf("marshal decision: %v", err)
	}
	fmt.Println(string(out))
}
