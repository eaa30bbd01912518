package detection

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/motion_classifier/internal/bus"
	"github.com/relabs-tech/motion_classifier/internal/imu"
)

// FeedStatus reports how the classification engine absorbed one feature.
type FeedStatus int

const (
	FeedInProgress FeedStatus = iota // window still filling
	FeedReady                        // window full, inference may run
	FeedError
)

func (s FeedStatus) String() string {
	switch s {
	case FeedInProgress:
		return "in progress"
	case FeedReady:
		return "ready"
	case FeedError:
		return "error"
	default:
		return "unknown"
	}
}

// Classifier is the classification engine collaborator. Its windowing and
// feature algorithm are opaque to this package.
type Classifier interface {
	Feed(feature float32) FeedStatus
	RunInference() (Output, error)
}

// Output exposes the engine's prediction: the winning class index and the
// per-class confidence vector.
type Output struct {
	PredictedClass uint16
	Probabilities  []float32
}

// Result is published on the result channel, at most once per distinct class
// during one detecting session.
type Result struct {
	PredictedClass uint16  `json:"class"`
	Confidence     float32 `json:"confidence"`
	Timestamp      uint32  `json:"timestamp"` // ms since detector start
}

// noClass marks "nothing published yet" so the first result of a session
// always goes out.
const noClass = math.MaxUint16

// Detector feeds each sample's acceleration-magnitude feature into the engine
// and publishes deduplicated results: identical consecutive classes are
// suppressed until Reset clears the memory. The mutex serializes every call
// into the engine, so the Classifier itself need not be thread-safe.
type Detector struct {
	model   Classifier
	results *bus.Channel[Result]
	start   time.Time

	mu            sync.Mutex
	lastPublished uint16
}

func New(model Classifier, results *bus.Channel[Result]) *Detector {
	return &Detector{
		model:         model,
		results:       results,
		start:         time.Now(),
		lastPublished: noClass,
	}
}

// accelMagnitudeMG converts a sample's accelerometer vector (m/s²) into the
// engine's feature unit: magnitude in milli-g (1g = 9.80665 m/s²).
func accelMagnitudeMG(s imu.Sample) float32 {
	magnitude := math.Sqrt(s.AccelX*s.AccelX + s.AccelY*s.AccelY + s.AccelZ*s.AccelZ)
	return float32(magnitude / 9.80665 * 1000.0)
}

// HandleSample is the sample-channel observer. The lock covers the whole
// feed/inference/publish path: the bus may run a late observer callback
// concurrently with the next publish, and the engine is not safe for that.
func (d *Detector) HandleSample(s imu.Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch status := d.model.Feed(accelMagnitudeMG(s)); status {
	case FeedReady:
	case FeedInProgress:
		return
	default:
		log.Printf("detection: feed failed: %v", status)
		return
	}

	out, err := d.model.RunInference()
	if err != nil {
		log.Printf("detection: inference failed: %v", err)
		return
	}
	if int(out.PredictedClass) >= len(out.Probabilities) {
		log.Printf("detection: predicted class %d out of range", out.PredictedClass)
		return
	}

	if out.PredictedClass == d.lastPublished {
		return
	}

	result := Result{
		PredictedClass: out.PredictedClass,
		Confidence:     out.Probabilities[out.PredictedClass],
		Timestamp:      uint32(time.Since(d.start).Milliseconds()),
	}
	if err := d.results.Publish(result); err != nil {
		log.Printf("detection: publish result: %v", err)
		return
	}
	d.lastPublished = out.PredictedClass
}

// Reset clears the dedup memory so the next result publishes unconditionally.
// The mode controller calls this on entry into a new detecting session.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.lastPublished = noClass
	d.mu.Unlock()
	log.Println("detection: state reset, next result will be published")
}
