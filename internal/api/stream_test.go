package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestJobStreamDeliversEvents(t *testing.T) {
	s := newTestServer()
	srv := httptest.NewServer(http.HandlerFunc(s.JobStreamHandler))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/jobs/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the handler a moment to register its subscription.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.Broker.Publish("jobs", Event{Type: "job.scheduled", Data: map[string]any{"jobId": "j1"}})
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		var frame struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		if err := conn.ReadJSON(&frame); err == nil {
			if frame.Type != "job.scheduled" || frame.Data["jobId"] != "j1" {
				t.Fatalf("frame = %+v", frame)
			}
			return
		}
	}
	t.Fatal("no event received on job stream")
}
