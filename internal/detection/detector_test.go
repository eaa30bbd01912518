package detection

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/relabs-tech/motion_classifier/internal/bus"
	"github.com/relabs-tech/motion_classifier/internal/imu"
)

// scriptedClassifier reports FeedReady on every sample and plays back a fixed
// sequence of inference outputs.
type scriptedClassifier struct {
	features  []float32
	outputs   []Output
	errs      []error
	inferRuns int
	status    FeedStatus
}

func (c *scriptedClassifier) Feed(feature float32) FeedStatus {
	c.features = append(c.features, feature)
	if c.status != FeedInProgress {
		return c.status
	}
	if len(c.outputs) > 0 || len(c.errs) > 0 {
		return FeedReady
	}
	return FeedInProgress
}

func (c *scriptedClassifier) RunInference() (Output, error) {
	i := c.inferRuns
	c.inferRuns++
	if i < len(c.errs) && c.errs[i] != nil {
		return Output{}, c.errs[i]
	}
	if i < len(c.outputs) {
		return c.outputs[i], nil
	}
	return Output{}, errors.New("script exhausted")
}

func output(class uint16, confidence float32) Output {
	probs := make([]float32, 8)
	probs[class] = confidence
	return Output{PredictedClass: class, Probabilities: probs}
}

func collectResults(t *testing.T) (*bus.Channel[Result], *[]Result) {
	t.Helper()

	ch := bus.NewChannel[Result]("detections")
	var results []Result
	if err := ch.Subscribe("test", 0, func(r Result) { results = append(results, r) }); err != nil {
		t.Fatalf("Subscribe = %v, want nil", err)
	}
	return ch, &results
}

func TestDetector_FeatureIsAccelMagnitudeMilliG(t *testing.T) {
	tests := []struct {
		name   string
		sample imu.Sample
		wantMG float64
	}{
		{"gravity on z", imu.Sample{AccelZ: 9.80665}, 1000},
		{"free fall", imu.Sample{}, 0},
		{"two g on x", imu.Sample{AccelX: 2 * 9.80665}, 2000},
		{"3-4-5 vector", imu.Sample{AccelX: 3, AccelY: 4}, 5 / 9.80665 * 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedClassifier{}
			ch, _ := collectResults(t)
			d := New(model, ch)

			d.HandleSample(tt.sample)

			if len(model.features) != 1 {
				t.Fatalf("Feed called %d times, want 1", len(model.features))
			}
			got := float64(model.features[0])
			if math.Abs(got-tt.wantMG) > 0.01 {
				t.Errorf("feature = %f, want %f", got, tt.wantMG)
			}
		})
	}
}

func TestDetector_DeduplicatesConsecutiveClasses(t *testing.T) {
	model := &scriptedClassifier{outputs: []Output{
		output(1, 0.9),
		output(1, 0.8),
		output(2, 0.7),
		output(2, 0.6),
		output(1, 0.5),
	}}
	ch, results := collectResults(t)
	d := New(model, ch)

	for i := 0; i < 5; i++ {
		d.HandleSample(imu.Sample{AccelZ: 9.80665})
	}

	wantClasses := []uint16{1, 2, 1}
	if len(*results) != len(wantClasses) {
		t.Fatalf("published %d results, want %d", len(*results), len(wantClasses))
	}
	for i, want := range wantClasses {
		if (*results)[i].PredictedClass != want {
			t.Errorf("result[%d].PredictedClass = %d, want %d", i, (*results)[i].PredictedClass, want)
		}
	}

	// Confidence is the winning class's probability from the same inference.
	if got := (*results)[0].Confidence; got != 0.9 {
		t.Errorf("result[0].Confidence = %f, want 0.9", got)
	}
}

func TestDetector_ResetRepublishesSameClass(t *testing.T) {
	model := &scriptedClassifier{outputs: []Output{
		output(3, 0.9),
		output(3, 0.9),
		output(3, 0.9),
	}}
	ch, results := collectResults(t)
	d := New(model, ch)

	d.HandleSample(imu.Sample{AccelZ: 9.80665})
	d.HandleSample(imu.Sample{AccelZ: 9.80665})
	if len(*results) != 1 {
		t.Fatalf("published %d results before reset, want 1", len(*results))
	}

	d.Reset()
	d.HandleSample(imu.Sample{AccelZ: 9.80665})

	if len(*results) != 2 {
		t.Fatalf("published %d results after reset, want 2", len(*results))
	}
}

func TestDetector_InferenceErrorPublishesNothing(t *testing.T) {
	model := &scriptedClassifier{
		errs:    []error{errors.New("engine fault"), nil},
		outputs: []Output{{}, output(1, 0.9)},
	}
	ch, results := collectResults(t)
	d := New(model, ch)

	d.HandleSample(imu.Sample{AccelZ: 9.80665})
	if len(*results) != 0 {
		t.Fatalf("published %d results after inference error, want 0", len(*results))
	}

	// The next window still works.
	d.HandleSample(imu.Sample{AccelZ: 9.80665})
	if len(*results) != 1 {
		t.Fatalf("published %d results after recovery, want 1", len(*results))
	}
}

func TestDetector_FeedErrorSkipsInference(t *testing.T) {
	model := &scriptedClassifier{status: FeedError}
	ch, results := collectResults(t)
	d := New(model, ch)

	d.HandleSample(imu.Sample{AccelZ: 9.80665})

	if model.inferRuns != 0 {
		t.Errorf("RunInference called %d times after feed error, want 0", model.inferRuns)
	}
	if len(*results) != 0 {
		t.Errorf("published %d results after feed error, want 0", len(*results))
	}
}

// reentrancyClassifier counts overlapping calls into the engine. The engine
// contract does not require thread safety, so the detector must never enter
// it from two goroutines at once.
type reentrancyClassifier struct {
	active   atomic.Int32
	overlaps atomic.Int32
}

func (c *reentrancyClassifier) Feed(feature float32) FeedStatus {
	if c.active.Add(1) > 1 {
		c.overlaps.Add(1)
	}
	defer c.active.Add(-1)
	return FeedInProgress
}

func (c *reentrancyClassifier) RunInference() (Output, error) {
	return Output{}, errors.New("window never fills")
}

func TestDetector_SerializesEngineCalls(t *testing.T) {
	model := &reentrancyClassifier{}
	ch := bus.NewChannel[Result]("detections")
	d := New(model, ch)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				d.HandleSample(imu.Sample{AccelZ: 9.80665})
			}
		}()
	}
	wg.Wait()

	if n := model.overlaps.Load(); n != 0 {
		t.Errorf("engine entered concurrently %d times, want 0", n)
	}
}

func TestDetector_OutOfRangeClassIsDropped(t *testing.T) {
	model := &scriptedClassifier{outputs: []Output{
		{PredictedClass: 9, Probabilities: make([]float32, 3)},
	}}
	ch, results := collectResults(t)
	d := New(model, ch)

	d.HandleSample(imu.Sample{AccelZ: 9.80665})

	if len(*results) != 0 {
		t.Errorf("published %d results for out-of-range class, want 0", len(*results))
	}
}
