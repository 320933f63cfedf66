package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ribbit/internal/vm"
)

// TestPublishWithNoClientDoesNotBlock confirms Publish is a safe no-op when
// nothing is connected, since a run with -telemetry-addr unset never starts
// a Server at all and one started with no observer yet must not stall the VM.
func TestPublishWithNoClientDoesNotBlock(t *testing.T) {
	s := New("127.0.0.1:0", nil)
	done := make(chan struct{})
	go func() {
		s.Publish(vm.Snapshot{Instructions: 1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no client connected")
	}
}

// TestPublishReachesConnectedClient exercises the full upgrade path using
// httptest, confirming a snapshot is delivered as JSON to the sole connected
// observer.
func TestPublishReachesConnectedClient(t *testing.T) {
	s := New("", nil)
	ts := httptest.NewServer(http.HandlerFunc(s.handleUpgrade))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// Give handleUpgrade's goroutine a moment to register the client.
	time.Sleep(50 * time.Millisecond)

	s.Publish(vm.Snapshot{Instructions: 42, HeapRibsLive: 7, Halted: true})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var got vm.Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Instructions != 42 || got.HeapRibsLive != 7 || !got.Halted {
		t.Fatalf("got %+v, want Instructions=42 HeapRibsLive=7 Halted=true", got)
	}
}
