package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/motion_classifier/internal/classifier"
	"github.com/relabs-tech/motion_classifier/internal/detection"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local tooling only
	},
}

// statusSnapshot is the JSON shape of /api/status and of websocket pushes.
type statusSnapshot struct {
	Mode          string            `json:"mode"`
	LastDetection *detectionMessage `json:"last_detection,omitempty"`
}

// WebStatus serves the current mode and the latest detection over HTTP and
// pushes every change to connected websocket clients.
type WebStatus struct {
	mu   sync.RWMutex
	mode string
	last *detectionMessage

	connMu sync.Mutex
	conns  map[*websocket.Conn]bool
}

// NewWebStatus registers the web observers on the bus channels. Must run
// during wiring, before the first publish.
func NewWebStatus(ch *Channels) (*WebStatus, error) {
	w := &WebStatus{
		mode:  ModeIdle.String(),
		conns: make(map[*websocket.Conn]bool),
	}

	if err := ch.Modes.Subscribe("web", 100*time.Millisecond, func(m Mode) {
		w.mu.Lock()
		w.mode = m.String()
		w.mu.Unlock()
		w.broadcast()
	}); err != nil {
		return nil, err
	}
	if err := ch.Detections.Subscribe("web", 100*time.Millisecond, func(r detection.Result) {
		msg := detectionMessage{Result: r, ClassName: classifier.ClassName(r.PredictedClass)}
		w.mu.Lock()
		w.last = &msg
		w.mu.Unlock()
		w.broadcast()
	}); err != nil {
		return nil, err
	}

	return w, nil
}

// Run serves until ctx is cancelled.
func (w *WebStatus) Run(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", w.handleStatus)
	mux.HandleFunc("/ws", w.handleWS)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Printf("web: listening on :%d", port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}

func (w *WebStatus) snapshot() statusSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return statusSnapshot{Mode: w.mode, LastDetection: w.last}
}

func (w *WebStatus) handleStatus(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(w.snapshot()); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (w *WebStatus) handleWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// The initial snapshot goes out under connMu: once the conn is in the
	// registry a broadcast may write it, and the websocket allows only one
	// writer at a time.
	w.connMu.Lock()
	w.conns[conn] = true
	if err := conn.WriteJSON(w.snapshot()); err != nil {
		log.Printf("web: websocket write error: %v", err)
	}
	w.connMu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	w.connMu.Lock()
	delete(w.conns, conn)
	w.connMu.Unlock()
}

func (w *WebStatus) broadcast() {
	snap := w.snapshot()

	w.connMu.Lock()
	defer w.connMu.Unlock()
	for conn := range w.conns {
		if err := conn.WriteJSON(snap); err != nil {
			log.Printf("web: websocket push error: %v", err)
			conn.Close()
			delete(w.conns, conn)
		}
	}
}
