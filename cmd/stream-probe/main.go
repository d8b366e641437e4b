// stream-probe drives the media stream endpoint the way the telephony
// provider would: connect, start, a few seconds of silence frames,
// stop. It prints whatever the bridge sends back.
//
// Usage:
//
//	stream-probe "wss://host/stream/ws?token=..."
package main

import (
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: stream-probe <wss-url>")
		os.Exit(2)
	}
	wsURL := os.Args[1]

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: false},
	}

	fmt.Printf("Connecting to %s ...\n", wsURL)
	conn, resp, err := dialer.Dial(wsURL, nil)
	if err != nil {
		if resp != nil {
			log.Fatalf("connect failed: %v (status %d)", err, resp.StatusCode)
		}
		log.Fatalf("connect failed: %v", err)
	}
	defer conn.Close()
	fmt.Println("Connected.")

	send := func(v interface{}) {
		if err := conn.WriteJSON(v); err != nil {
			log.Fatalf("write: %v", err)
		}
	}

	send(map[string]interface{}{"event": "connected"})
	send(map[string]interface{}{
		"event": "start",
		"start": map[string]interface{}{
			"streamSid": "MZprobe",
			"callSid":   "CAprobe",
			"customParameters": map[string]string{
				"agentId":    os.Getenv("PROBE_AGENT_ID"),
				"contextTag": "in-hours",
				"caller":     "+15555550100",
				"account":    "+15555550199",
			},
		},
	})
	fmt.Println("Start event sent.")

	// Print whatever comes back while we stream silence.
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				fmt.Printf("read loop ended: %v\n", err)
				return
			}
			var ev map[string]interface{}
			if json.Unmarshal(msg, &ev) == nil {
				fmt.Printf("<- %v\n", ev["event"])
			}
		}
	}()

	// 3 seconds of 20 ms mu-law silence frames (0xFF is mu-law zero).
	frame := make([]byte, 160)
	for i := range frame {
		frame[i] = 0xFF
	}
	payload := base64.StdEncoding.EncodeToString(frame)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for i := 0; i < 150; i++ {
		<-ticker.C
		send(map[string]interface{}{
			"event": "media",
			"media": map[string]string{"payload": payload},
		})
	}
	fmt.Println("Sent 150 media frames.")

	send(map[string]interface{}{"event": "stop", "streamSid": "MZprobe"})
	fmt.Println("Stop event sent.")

	time.Sleep(time.Second)
	fmt.Println("Done.")
}
