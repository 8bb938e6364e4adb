// Package main runs a demo WebSocket client for session events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Create a session with a few demo stops
	body := []byte(`{
		"batchId": "batch-demo",
		"origin": {"id": "depot", "lat": 40.0, "lng": -75.0},
		"segments": 2,
		"stops": [
			{"id": "s1", "lat": 40.01, "lng": -75.00, "orderNumber": "1001"},
			{"id": "s2", "lat": 40.02, "lng": -75.01, "orderNumber": "1002"},
			{"id": "s3", "lat": 40.50, "lng": -75.50, "orderNumber": "1003"},
			{"id": "s4", "lat": 40.51, "lng": -75.51, "orderNumber": "1004"}
		]
	}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var view struct {
		ID       string `json:"id"`
		Segments []struct {
			Key string `json:"key"`
		} `json:"segments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		log.Fatal(err)
	}
	if view.ID == "" {
		log.Fatal("no session returned")
	}
	log.Printf("Session ID: %s", view.ID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/sessions/" + view.ID + "/events"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var evt struct {
				Type string         `json:"type"`
				Data map[string]any `json:"data"`
			}
			if err := c.ReadJSON(&evt); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %v", evt.Type, evt.Data)
		}
	}()

	// Trigger a segment event via reorder
	time.Sleep(500 * time.Millisecond)
	if len(view.Segments) > 0 {
		reorder := fmt.Sprintf(`{"segment":%q,"from":0,"to":1}`, view.Segments[0].Key)
		rReq, _ := http.NewRequest(http.MethodPost, base+"/v1/sessions/"+view.ID+"/reorder", bytes.NewReader([]byte(reorder)))
		rReq.Header.Set("Content-Type", "application/json")
		_, _ = http.DefaultClient.Do(rReq)
	}

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
