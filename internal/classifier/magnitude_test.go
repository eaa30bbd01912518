package classifier

import (
	"errors"
	"testing"

	"github.com/relabs-tech/motion_classifier/internal/detection"
)

// fillWindow feeds size-1 values of v and asserts the window is still filling.
func fillWindow(t *testing.T, m *Magnitude, size int, v float32) {
	t.Helper()

	for i := 0; i < size-1; i++ {
		if status := m.Feed(v); status != detection.FeedInProgress {
			t.Fatalf("Feed #%d = %v, want %v", i, status, detection.FeedInProgress)
		}
	}
}

func TestMagnitude_WindowFillStatus(t *testing.T) {
	m := NewMagnitude(10)

	fillWindow(t, m, 10, 1000)
	if status := m.Feed(1000); status != detection.FeedReady {
		t.Errorf("final Feed = %v, want %v", status, detection.FeedReady)
	}
}

func TestMagnitude_InferenceBeforeWindowFull(t *testing.T) {
	m := NewMagnitude(10)
	m.Feed(1000)

	if _, err := m.RunInference(); !errors.Is(err, ErrWindowNotReady) {
		t.Errorf("RunInference on partial window = %v, want ErrWindowNotReady", err)
	}
}

func TestMagnitude_Classification(t *testing.T) {
	tests := []struct {
		name      string
		features  []float32
		wantClass uint16
	}{
		{
			name:      "still at one g is idle",
			features:  repeat(1000, 10),
			wantClass: ClassIdle,
		},
		{
			name:      "near-zero magnitude is free fall",
			features:  repeat(50, 10),
			wantClass: ClassFreeFall,
		},
		{
			name:      "spike beyond 2.5g is impact",
			features:  append(repeat(1000, 9), 3000),
			wantClass: ClassImpact,
		},
		{
			name:      "large swings are shaking",
			features:  alternate(400, 1600, 10),
			wantClass: ClassShaking,
		},
		{
			name:      "moderate swings are carrying",
			features:  alternate(800, 1200, 10),
			wantClass: ClassCarrying,
		},
		{
			name:      "small vibration is in car",
			features:  alternate(930, 1070, 10),
			wantClass: ClassInCar,
		},
		{
			name:      "faint vibration is placed",
			features:  alternate(975, 1025, 10),
			wantClass: ClassPlaced,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMagnitude(len(tt.features))
			var status detection.FeedStatus
			for _, f := range tt.features {
				status = m.Feed(f)
			}
			if status != detection.FeedReady {
				t.Fatalf("window not ready after %d features", len(tt.features))
			}

			out, err := m.RunInference()
			if err != nil {
				t.Fatalf("RunInference = %v, want nil", err)
			}
			if out.PredictedClass != tt.wantClass {
				t.Errorf("PredictedClass = %s, want %s",
					ClassName(out.PredictedClass), ClassName(tt.wantClass))
			}

			if len(out.Probabilities) != int(numClasses) {
				t.Fatalf("len(Probabilities) = %d, want %d", len(out.Probabilities), numClasses)
			}
			winner := out.Probabilities[out.PredictedClass]
			for i, p := range out.Probabilities {
				if uint16(i) != out.PredictedClass && p >= winner {
					t.Errorf("Probabilities[%d] = %f, want below winner %f", i, p, winner)
				}
			}
		})
	}
}

func TestMagnitude_WindowRestartsAfterInference(t *testing.T) {
	m := NewMagnitude(5)

	fillWindow(t, m, 5, 1000)
	m.Feed(1000)
	if _, err := m.RunInference(); err != nil {
		t.Fatalf("first RunInference = %v, want nil", err)
	}

	// The window restarts: the next feed is filling again.
	if status := m.Feed(1000); status != detection.FeedInProgress {
		t.Errorf("Feed after inference = %v, want %v", status, detection.FeedInProgress)
	}
	if _, err := m.RunInference(); !errors.Is(err, ErrWindowNotReady) {
		t.Errorf("RunInference on restarted window = %v, want ErrWindowNotReady", err)
	}
}

func TestClassName(t *testing.T) {
	tests := []struct {
		class uint16
		want  string
	}{
		{ClassIdle, "Idle"},
		{ClassShaking, "Shaking"},
		{ClassImpact, "Impact"},
		{ClassFreeFall, "Free Fall"},
		{ClassCarrying, "Carrying"},
		{ClassInCar, "in Car"},
		{ClassPlaced, "Placed"},
		{99, "Unknown"},
	}

	for _, tt := range tests {
		if got := ClassName(tt.class); got != tt.want {
			t.Errorf("ClassName(%d) = %q, want %q", tt.class, got, tt.want)
		}
	}
}

func repeat(v float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func alternate(a, b float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = a
		} else {
			out[i] = b
		}
	}
	return out
}
