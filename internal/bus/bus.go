// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bus

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrSealed is returned by Subscribe once the channel has seen its first
// publish. The observer set is fixed during the single init phase.
var ErrSealed = errors.New("bus: channel sealed, subscriptions are fixed at init")

type observer[T any] struct {
	name    string
	maxWait time.Duration
	fn      func(T)
}

// Channel is a named typed conduit with a fixed set of observers. Publish
// delivers the value to every observer before returning; an observer that
// exceeds its max-wait budget is abandoned (its callback may still complete
// late, at most once) and reported, without blocking delivery to the rest.
type Channel[T any] struct {
	name string

	mu        sync.Mutex
	sealed    bool
	observers []observer[T]
}

// NewChannel creates a channel. Channels are built once at startup and live
// for the process lifetime; there is no teardown.
func NewChannel[T any](name string) *Channel[T] {
	return &Channel[T]{name: name}
}

func (c *Channel[T]) Name() string { return c.name }

// Subscribe registers an observer. maxWait bounds how long a single publish
// waits for fn to return; maxWait <= 0 runs fn inline with no budget, so such
// an observer must be non-blocking or hand off to its own goroutine.
func (c *Channel[T]) Subscribe(name string, maxWait time.Duration, fn func(T)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return fmt.Errorf("%w: %s", ErrSealed, c.name)
	}
	c.observers = append(c.observers, observer[T]{name: name, maxWait: maxWait, fn: fn})
	return nil
}

// Publish delivers v to every observer in subscription order. The returned
// error describes observers that missed their delivery budget; the publisher
// is expected to log it and carry on, never to stall.
func (c *Channel[T]) Publish(v T) error {
	c.mu.Lock()
	c.sealed = true
	obs := c.observers
	c.mu.Unlock()

	var errs []error
	for _, o := range obs {
		if o.maxWait <= 0 {
			o.fn(v)
			continue
		}

		done := make(chan struct{})
		go func(fn func(T)) {
			fn(v)
			close(done)
		}(o.fn)

		timer := time.NewTimer(o.maxWait)
		select {
		case <-done:
			timer.Stop()
		case <-timer.C:
			log.Printf("bus: %s: observer %s exceeded delivery budget %v", c.name, o.name, o.maxWait)
			errs = append(errs, fmt.Errorf("observer %s on %s missed %v budget", o.name, c.name, o.maxWait))
		}
	}
	return errors.Join(errs...)
}
