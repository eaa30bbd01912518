package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/motion_classifier/internal/bus"
	"github.com/relabs-tech/motion_classifier/internal/detection"
)

func newTestWebStatus(t *testing.T) (*WebStatus, *Channels) {
	t.Helper()

	ch := &Channels{
		Modes:      bus.NewChannel[Mode]("modes"),
		Detections: bus.NewChannel[detection.Result]("detections"),
	}
	w, err := NewWebStatus(ch)
	if err != nil {
		t.Fatalf("NewWebStatus = %v, want nil", err)
	}
	return w, ch
}

func TestWebStatus_InitialSnapshot(t *testing.T) {
	w, ch := newTestWebStatus(t)

	if err := ch.Modes.Publish(ModeDetecting); err != nil {
		t.Fatalf("Publish = %v, want nil", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(w.handleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), nil)
	if err != nil {
		t.Fatalf("Dial = %v, want nil", err)
	}
	defer conn.Close()

	var snap statusSnapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("ReadJSON = %v, want nil", err)
	}
	if snap.Mode != ModeDetecting.String() {
		t.Errorf("snapshot mode = %q, want %q", snap.Mode, ModeDetecting.String())
	}
}

// Connecting clients receive their initial snapshot while broadcasts are in
// flight; the two writers on one connection must be serialized.
func TestWebStatus_ConcurrentConnectAndBroadcast(t *testing.T) {
	w, ch := newTestWebStatus(t)

	srv := httptest.NewServer(http.HandlerFunc(w.handleWS))
	defer srv.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			ch.Modes.Publish(ModeDetecting)
			ch.Modes.Publish(ModeIdle)
		}
	}()

	for i := 0; i < 30; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), nil)
		if err != nil {
			t.Fatalf("Dial #%d = %v, want nil", i, err)
		}
		var snap statusSnapshot
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("ReadJSON #%d = %v, want nil", i, err)
		}
		conn.Close()
	}

	wg.Wait()
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}
