package button

import (
	"context"
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// EdgeSource watches a GPIO pin and reports transitions as the same
// (pressed, changed) bitmask shape a hardware edge interrupt delivers.
// The button is wired active-low against the internal pull-up.
type EdgeSource struct {
	pin  gpio.PinIn
	mask uint32
}

func NewEdgeSource(pinName string, mask uint32) (*EdgeSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("button: periph host init: %w", err)
	}

	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("button: GPIO pin %q not found", pinName)
	}
	if err := pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("button: configure %s: %w", pinName, err)
	}

	log.Printf("button: watching edges on %s", pinName)
	return &EdgeSource{pin: pin, mask: mask}, nil
}

// Run blocks delivering edges to handler until ctx is cancelled. The edge
// wait is bounded so cancellation is observed between edges.
func (s *EdgeSource) Run(ctx context.Context, handler func(pressed, changed uint32)) error {
	var pressed uint32
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.pin.WaitForEdge(time.Second) {
			continue
		}

		prev := pressed
		if s.pin.Read() == gpio.Low {
			pressed |= s.mask
		} else {
			pressed &^= s.mask
		}
		if changed := prev ^ pressed; changed != 0 {
			handler(pressed, changed)
		}
	}
}
