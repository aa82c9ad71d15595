//go:build redis_integration

package api

import (
    "os"
    "sync"
    "testing"
    "time"
)

func TestRedisBrokerSubscribeUnsubscribeRace(t *testing.T) {
    if os.Getenv("REDIS_URL") == "" { t.Skip("REDIS_URL not set; skipping integration test") }
    b, err := NewRedisBroker()
    if err != nil { t.Fatalf("NewRedisBroker: %v", err) }

    ch := b.Subscribe("jobs")
    time.Sleep(100 * time.Millisecond)
    b.Publish("jobs", Event{Type: "job.scheduled", Data: map[string]any{"jobId": "j1"}})
    select {
    case evt := <-ch:
        if evt.Type != "job.scheduled" { t.Fatalf("evt = %+v", evt) }
    case <-time.After(2 * time.Second):
        t.Fatal("no event from redis broker")
    }

    // Publishing while unsubscribing must never panic; the PubSub teardown
    // lets the reader goroutine close the channel itself.
    var wg sync.WaitGroup
    wg.Add(1)
    go func() {
        defer wg.Done()
        for i := 0; i < 100; i++ {
            b.Publish("jobs", Event{Type: "job.scheduled"})
        }
    }()
    b.Unsubscribe("jobs", ch)
    wg.Wait()
    for range ch {
        // drain until the reader goroutine closes it
    }
}
