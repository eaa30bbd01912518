package classifier

import (
	"errors"
	"math"

	"github.com/relabs-tech/motion_classifier/internal/detection"
)

// Motion classes recognized by the built-in model, in output order.
const (
	ClassIdle uint16 = iota
	ClassShaking
	ClassImpact
	ClassFreeFall
	ClassCarrying
	ClassInCar
	ClassPlaced

	numClasses
)

var classNames = [numClasses]string{
	"Idle", "Shaking", "Impact", "Free Fall", "Carrying", "in Car", "Placed",
}

// ClassName returns the human-readable name of a class index.
func ClassName(class uint16) string {
	if class >= numClasses {
		return "Unknown"
	}
	return classNames[class]
}

// ErrWindowNotReady is returned by RunInference before the window has filled.
var ErrWindowNotReady = errors.New("classifier: feature window not ready")

// DefaultWindowSize matches the trained model's input window at 100 Hz.
const DefaultWindowSize = 50

// Magnitude is a fixed-window classifier over the acceleration-magnitude
// feature (milli-g). It implements detection.Classifier with a simple
// statistics heuristic: the window fills, inference runs over mean, spread,
// and extremes, then the window restarts for the next inference.
type Magnitude struct {
	window []float32
	filled int
	ready  bool
}

func NewMagnitude(windowSize int) *Magnitude {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Magnitude{window: make([]float32, windowSize)}
}

// Feed absorbs one feature value and reports whether the window is full.
func (m *Magnitude) Feed(feature float32) detection.FeedStatus {
	if m.filled < len(m.window) {
		m.window[m.filled] = feature
		m.filled++
	}
	if m.filled == len(m.window) {
		m.ready = true
		return detection.FeedReady
	}
	return detection.FeedInProgress
}

// RunInference classifies the current window and restarts it.
func (m *Magnitude) RunInference() (detection.Output, error) {
	if !m.ready {
		return detection.Output{}, ErrWindowNotReady
	}
	m.ready = false
	m.filled = 0

	var sum, minV, maxV float64
	minV = math.Inf(1)
	maxV = math.Inf(-1)
	for _, v := range m.window {
		f := float64(v)
		sum += f
		minV = math.Min(minV, f)
		maxV = math.Max(maxV, f)
	}
	mean := sum / float64(len(m.window))

	var variance float64
	for _, v := range m.window {
		d := float64(v) - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(m.window)))

	class, score := classify(mean, std, minV, maxV)
	return detection.Output{
		PredictedClass: class,
		Probabilities:  confidenceVector(class, score),
	}, nil
}

// classify maps window statistics (milli-g) to a class and a 0..1 score for
// how decisively the winning rule fired. Rules are ordered by severity.
func classify(mean, std, minV, maxV float64) (uint16, float64) {
	switch {
	case minV < 300:
		return ClassFreeFall, (300 - minV) / 300
	case maxV > 2500:
		return ClassImpact, (maxV - 2500) / 2500
	case std > 400:
		return ClassShaking, (std - 400) / 400
	case std > 150:
		return ClassCarrying, (std - 150) / 250
	case std > 50:
		return ClassInCar, (std - 50) / 100
	case std > 15:
		return ClassPlaced, (std - 15) / 35
	default:
		return ClassIdle, (15 - std) / 15
	}
}

func confidenceVector(winner uint16, score float64) []float32 {
	score = math.Max(0, math.Min(1, score))
	p := float32(0.5 + 0.45*score)

	probs := make([]float32, numClasses)
	rest := (1 - p) / float32(numClasses-1)
	for i := range probs {
		probs[i] = rest
	}
	probs[winner] = p
	return probs
}
