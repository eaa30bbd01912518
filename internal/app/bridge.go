package app

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/motion_classifier/internal/classifier"
	"github.com/relabs-tech/motion_classifier/internal/config"
	"github.com/relabs-tech/motion_classifier/internal/detection"
	"github.com/relabs-tech/motion_classifier/internal/imu"
)

// detectionMessage is the wire form of a detection result, carrying the
// resolved class name for off-device consumers.
type detectionMessage struct {
	detection.Result
	ClassName string `json:"class_name"`
}

// modeMessage is the wire form of a mode transition.
type modeMessage struct {
	Mode string `json:"mode"`
}

// Bridge mirrors bus traffic to MQTT so off-device tooling (the console, a
// dashboard) can follow samples, detections, and mode transitions.
type Bridge struct {
	client mqtt.Client
}

// NewBridge connects to the broker and registers the bridge's observers on
// the bus channels. Must run during wiring, before the first publish.
func NewBridge(cfg *config.Config, ch *Channels) (*Bridge, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDevice)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("bridge: MQTT connect: %w", token.Error())
	}
	log.Printf("bridge: connected to MQTT broker at %s", cfg.MQTTBroker)

	b := &Bridge{client: client}

	if err := ch.Samples.Subscribe("mqtt_bridge", 100*time.Millisecond, func(s imu.Sample) {
		b.publish(cfg.TopicIMUSamples, s, false)
	}); err != nil {
		return nil, err
	}
	if err := ch.Detections.Subscribe("mqtt_bridge", 100*time.Millisecond, func(r detection.Result) {
		b.publish(cfg.TopicDetections, detectionMessage{
			Result:    r,
			ClassName: classifier.ClassName(r.PredictedClass),
		}, true)
	}); err != nil {
		return nil, err
	}
	if err := ch.Modes.Subscribe("mqtt_bridge", 100*time.Millisecond, func(m Mode) {
		b.publish(cfg.TopicMode, modeMessage{Mode: m.String()}, true)
	}); err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Bridge) publish(topic string, v any, retain bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("bridge: marshal for %s: %v", topic, err)
		return
	}
	if token := b.client.Publish(topic, 0, retain, payload); token.Wait() && token.Error() != nil {
		log.Printf("bridge: publish to %s: %v", topic, token.Error())
	}
}

func (b *Bridge) Close() {
	b.client.Disconnect(250)
}
