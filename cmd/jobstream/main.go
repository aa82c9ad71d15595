// Package main runs a demo client that watches the live job stream while
// triggering a batch planning pass.
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

	date := os.Getenv("PLAN_DATE")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	// Connect the stream first so no events are missed.
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/jobs/stream"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var frame struct {
				Type string         `json:"type"`
				Data map[string]any `json:"data"`
			}
			if err := c.ReadJSON(&frame); err != nil {
				return
			}
			log.Printf("event %s: %v", frame.Type, frame.Data)
			if frame.Type == "batch.completed" {
				return
			}
		}
	}()

	// Trigger a batch pass for the date.
	body, _ := json.Marshal(map[string]string{"date": date})
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/plan/batch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var planResp struct {
		Jobs []struct {
			ID        string `json:"id"`
			VehicleID string `json:"vehicleId"`
		} `json:"jobs"`
		Log []string `json:"log"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&planResp); err != nil {
		log.Fatal(err)
	}
	log.Printf("batch %s: %d jobs", date, len(planResp.Jobs))
	for _, line := range planResp.Log {
		log.Printf("plan: %s", line)
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Println("timed out waiting for batch.completed on the stream")
	}
}
