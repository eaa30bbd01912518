package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/motion_classifier/internal/config"
	"github.com/relabs-tech/motion_classifier/internal/imu"
)

// RunConsole subscribes to the device's MQTT topics and prints every message
// as a one-line human-readable record. Blocks until Ctrl+C.
func RunConsole() error {
	cfg := config.Get()
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("console: MQTT_BROKER is not configured")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Subscribe to raw IMU samples
	imuToken := client.Subscribe(cfg.TopicIMUSamples, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s imu.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: sample unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[IMU ] ax=%8.4f ay=%8.4f az=%8.4f  gx=%8.4f gy=%8.4f gz=%8.4f\n",
			s.AccelX, s.AccelY, s.AccelZ, s.GyroX, s.GyroY, s.GyroZ,
		)
	})
	imuToken.Wait()
	if imuToken.Error() != nil {
		return imuToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicIMUSamples)

	// Subscribe to detections
	detToken := client.Subscribe(cfg.TopicDetections, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var d detectionMessage
		if err := json.Unmarshal(msg.Payload(), &d); err != nil {
			log.Printf("console: detection unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[DET ] class=%-10s confidence=%3d%%  t=%d\n",
			d.ClassName, int(d.Confidence*100), d.Timestamp,
		)
	})
	detToken.Wait()
	if detToken.Error() != nil {
		return detToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicDetections)

	// Subscribe to mode transitions
	modeToken := client.Subscribe(cfg.TopicMode, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m modeMessage
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("console: mode unmarshal error: %v", err)
			return
		}

		fmt.Printf("[MODE] %s\n", m.Mode)
	})
	modeToken.Wait()
	if modeToken.Error() != nil {
		return modeToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicMode)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
