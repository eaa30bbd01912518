// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package button

import (
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/motion_classifier/internal/bus"
)

// Btn1Mask is the bit used for the single user button on the dev board.
const Btn1Mask uint32 = 1 << 0

// Event is the classified result of one complete button interaction.
type Event int

const (
	SinglePress Event = iota
	DoublePress
	LongPress
)

func (e Event) String() string {
	switch e {
	case SinglePress:
		return "single press"
	case DoublePress:
		return "double press"
	case LongPress:
		return "long press"
	default:
		return "unknown"
	}
}

// Config holds the recognizer timing windows and the tracked button bit.
type Config struct {
	Mask         uint32        // bit of the tracked button in the edge masks
	Debounce     time.Duration // press edges closer than this are bounce
	LongPress    time.Duration // held at least this long is a long press
	SettleWindow time.Duration // wait after release for a further press
}

// Recognizer turns raw button edges into exactly one Event per interaction.
// All state is guarded by mu, serializing the edge callback and the two timer
// expiry callbacks. The seq counters make cancellation race-free: an expiry
// that lost the race against a cancel sees a stale sequence and returns.
// At most one of the two timers is armed at any instant.
type Recognizer struct {
	cfg    Config
	events *bus.Channel[Event]

	mu         sync.Mutex
	pressCount int
	lastPress  time.Time
	held       bool

	longSeq     uint64
	settleSeq   uint64
	longArmed   bool
	settleArmed bool
	longTimer   *time.Timer
	settleTimer *time.Timer
}

func NewRecognizer(cfg Config, events *bus.Channel[Event]) *Recognizer {
	return &Recognizer{cfg: cfg, events: events}
}

// HandleEdge processes one raw edge callback. pressed carries the buttons
// currently held, changed the bits that flipped since the previous callback.
// Edges where the tracked bit did not change are ignored.
func (r *Recognizer) HandleEdge(pressed, changed uint32) {
	if changed&r.cfg.Mask == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if pressed&r.cfg.Mask != 0 {
		now := time.Now()
		if !r.lastPress.IsZero() && now.Sub(r.lastPress) < r.cfg.Debounce {
			return
		}
		r.held = true
		r.lastPress = now
		r.pressCount++
		r.armLongLocked()
		return
	}

	r.held = false
	if r.longArmed {
		r.cancelLongLocked()
		r.armSettleLocked()
	}
}

// armLongLocked arms the long-press timer, cancelling a pending settle window
// so a press always pre-empts multi-click disambiguation.
func (r *Recognizer) armLongLocked() {
	r.cancelSettleLocked()
	r.longSeq++
	r.longArmed = true
	seq := r.longSeq
	r.longTimer = time.AfterFunc(r.cfg.LongPress, func() { r.longPressExpired(seq) })
}

// armSettleLocked (re)arms the settle timer from now, extending the window on
// every qualifying release.
func (r *Recognizer) armSettleLocked() {
	r.settleSeq++
	r.settleArmed = true
	seq := r.settleSeq
	r.settleTimer = time.AfterFunc(r.cfg.SettleWindow, func() { r.settleExpired(seq) })
}

func (r *Recognizer) cancelLongLocked() {
	r.longSeq++
	r.longArmed = false
	if r.longTimer != nil {
		r.longTimer.Stop()
	}
}

func (r *Recognizer) cancelSettleLocked() {
	r.settleSeq++
	r.settleArmed = false
	if r.settleTimer != nil {
		r.settleTimer.Stop()
	}
}

func (r *Recognizer) longPressExpired(seq uint64) {
	r.mu.Lock()
	if seq != r.longSeq {
		r.mu.Unlock()
		return
	}
	r.longArmed = false
	if !r.held {
		r.mu.Unlock()
		return
	}
	r.pressCount = 0
	r.lastPress = time.Time{}
	r.mu.Unlock()

	log.Println("button: long press detected")
	r.publish(LongPress)
}

func (r *Recognizer) settleExpired(seq uint64) {
	r.mu.Lock()
	if seq != r.settleSeq {
		r.mu.Unlock()
		return
	}
	r.settleArmed = false
	count := r.pressCount
	r.pressCount = 0
	r.lastPress = time.Time{}
	r.mu.Unlock()

	switch count {
	case 1:
		r.publish(SinglePress)
	case 2:
		r.publish(DoublePress)
	default:
		// Recoverable internal error: counters were already reset above.
		log.Printf("button: invalid press count: %d", count)
	}
}

func (r *Recognizer) publish(ev Event) {
	if err := r.events.Publish(ev); err != nil {
		log.Printf("button: publish %s: %v", ev, err)
	}
}
