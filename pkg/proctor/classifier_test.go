package proctor

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type sinkRecorder struct {
	mu         sync.Mutex
	violations []Violation
	events     []LifecycleEvent
}

func (s *sinkRecorder) Add(v Violation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = append(s.violations, v)
}

func (s *sinkRecorder) AddEvent(ev LifecycleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *sinkRecorder) Violations() []Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Violation, len(s.violations))
	copy(out, s.violations)
	return out
}

func (s *sinkRecorder) Events() []LifecycleEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LifecycleEvent, len(s.events))
	copy(out, s.events)
	return out
}

// fakeClock lets tests step the classifier's notion of time past the
// cooldown window.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestClassifier(t *testing.T, opts Options) (*classifier, *sinkRecorder, *fakeClock) {
	t.Helper()
	opts = opts.withDefaults()
	sink := &sinkRecorder{}
	cls := newClassifier(opts, sink)
	clock := newFakeClock()
	cls.now = clock.Now
	return cls, sink, clock
}

func centeredFace() Face {
	return Face{Landmarks: Landmarks{
		LeftEye:  Point{X: 40, Y: 50},
		RightEye: Point{X: 60, Y: 50},
		NoseTip:  Point{X: 50, Y: 60},
	}}
}

func awayFace() Face {
	f := centeredFace()
	// 8px offset over a 20px inter-eye distance: 40% > 30% threshold
	f.Landmarks.NoseTip.X = 58
	return f
}

func violationTypes(vs []Violation) []ViolationType {
	out := make([]ViolationType, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Type)
	}
	return out
}

func TestNoFaceRequiresConsecutiveSamples(t *testing.T) {
	cls, sink, _ := newTestClassifier(t, Options{})

	cls.ProcessFrame(Frame{})
	if got := sink.Violations(); len(got) != 0 {
		t.Fatalf("one zero-face sample should not emit, got %v", violationTypes(got))
	}

	cls.ProcessFrame(Frame{})
	got := sink.Violations()
	if len(got) != 1 || got[0].Type != ViolationNoFace {
		t.Fatalf("second zero-face sample should emit NO_FACE, got %v", violationTypes(got))
	}
	if got[0].Severity != SeverityHigh {
		t.Fatalf("NO_FACE severity = %s, want HIGH", got[0].Severity)
	}
}

func TestNoFaceCounterResetsOnFace(t *testing.T) {
	cls, sink, _ := newTestClassifier(t, Options{})

	cls.ProcessFrame(Frame{})
	cls.ProcessFrame(Frame{Faces: []Face{centeredFace()}})
	cls.ProcessFrame(Frame{})
	if got := sink.Violations(); len(got) != 0 {
		t.Fatalf("intervening face sample should reset the counter, got %v", violationTypes(got))
	}
}

func TestMultipleFacesFiresImmediately(t *testing.T) {
	cls, sink, _ := newTestClassifier(t, Options{})

	cls.ProcessFrame(Frame{Faces: []Face{centeredFace(), centeredFace()}})
	got := sink.Violations()
	if len(got) != 1 || got[0].Type != ViolationMultipleFaces {
		t.Fatalf("first multi-face sample should emit MULTIPLE_FACES, got %v", violationTypes(got))
	}
}

func TestLookingAwayRequiresThreeSamples(t *testing.T) {
	cls, sink, _ := newTestClassifier(t, Options{})

	cls.ProcessFrame(Frame{Faces: []Face{awayFace()}})
	cls.ProcessFrame(Frame{Faces: []Face{awayFace()}})
	if got := sink.Violations(); len(got) != 0 {
		t.Fatalf("two away samples should not emit, got %v", violationTypes(got))
	}
	cls.ProcessFrame(Frame{Faces: []Face{awayFace()}})
	got := sink.Violations()
	if len(got) != 1 || got[0].Type != ViolationLookingAway {
		t.Fatalf("third away sample should emit LOOKING_AWAY, got %v", violationTypes(got))
	}
	if got[0].Severity != SeverityMedium {
		t.Fatalf("LOOKING_AWAY severity = %s, want MEDIUM", got[0].Severity)
	}
}

func TestLookingAwayResetsOnCenteredSample(t *testing.T) {
	cls, sink, _ := newTestClassifier(t, Options{})

	cls.ProcessFrame(Frame{Faces: []Face{awayFace()}})
	cls.ProcessFrame(Frame{Faces: []Face{awayFace()}})
	cls.ProcessFrame(Frame{Faces: []Face{centeredFace()}})
	cls.ProcessFrame(Frame{Faces: []Face{awayFace()}})
	if got := sink.Violations(); len(got) != 0 {
		t.Fatalf("centered sample should reset the away counter, got %v", violationTypes(got))
	}
}

func TestDifferentPersonByEmbeddingDistance(t *testing.T) {
	ref := make([]float64, 128)
	far := make([]float64, 128)
	for i := range far {
		far[i] = 0.1 // distance sqrt(128*0.01) ≈ 1.13 > 0.6
	}
	cls, sink, _ := newTestClassifier(t, Options{ReferenceEmbedding: ref})

	same := centeredFace()
	same.Embedding = make([]float64, 128)
	cls.ProcessFrame(Frame{Faces: []Face{same}})
	if got := sink.Violations(); len(got) != 0 {
		t.Fatalf("matching embedding should not emit, got %v", violationTypes(got))
	}

	other := centeredFace()
	other.Embedding = far
	cls.ProcessFrame(Frame{Faces: []Face{other}})
	got := sink.Violations()
	if len(got) != 1 || got[0].Type != ViolationDifferentPerson {
		t.Fatalf("distant embedding should emit DIFFERENT_PERSON, got %v", violationTypes(got))
	}
}

func TestCooldownSuppressesRepeatedType(t *testing.T) {
	cls, sink, clock := newTestClassifier(t, Options{})

	cls.PageHidden()
	clock.Advance(10 * time.Second)
	cls.PageHidden()
	if got := sink.Violations(); len(got) != 1 {
		t.Fatalf("repeat within cooldown should be suppressed, got %d entries", len(got))
	}

	clock.Advance(90 * time.Second)
	cls.PageHidden()
	if got := sink.Violations(); len(got) != 2 {
		t.Fatalf("repeat after cooldown should emit, got %d entries", len(got))
	}
}

func TestCooldownIsPerType(t *testing.T) {
	cls, sink, clock := newTestClassifier(t, Options{})

	cls.PageHidden()
	clock.Advance(time.Second)
	cls.WindowBlurred()
	got := sink.Violations()
	if len(got) != 2 {
		t.Fatalf("distinct types cool down independently, got %v", violationTypes(got))
	}
}

func TestCameraRestartCap(t *testing.T) {
	cls, _, clock := newTestClassifier(t, Options{})

	if !cls.CameraEnded() {
		t.Fatal("first termination should attempt restart")
	}
	clock.Advance(2 * time.Minute)
	if !cls.CameraEnded() {
		t.Fatal("second termination should attempt restart")
	}
	clock.Advance(2 * time.Minute)
	if cls.CameraEnded() {
		t.Fatal("third termination should be terminal")
	}
}

func TestPermissionDeniedCallback(t *testing.T) {
	var denied error
	cls, sink, _ := newTestClassifier(t, Options{
		OnPermissionDenied: func(err error) { denied = err },
	})

	cause := errors.New("NotAllowedError")
	cls.PermissionDenied(cause)
	if denied != cause {
		t.Fatalf("OnPermissionDenied got %v, want %v", denied, cause)
	}
	got := sink.Violations()
	if len(got) != 1 || got[0].Type != ViolationCameraBlocked || got[0].Severity != SeverityHigh {
		t.Fatalf("permission denial should record a HIGH CAMERA_BLOCKED, got %v", got)
	}
}

func TestNetworkChangesAreEventsNotViolations(t *testing.T) {
	cls, sink, _ := newTestClassifier(t, Options{})

	cls.NetworkChanged(false)
	cls.NetworkChanged(true)
	if got := sink.Violations(); len(got) != 0 {
		t.Fatalf("network transitions must not be violations, got %v", violationTypes(got))
	}
	evs := sink.Events()
	if len(evs) != 2 || evs[0].Kind != EventNetworkLost || evs[1].Kind != EventNetworkRestored {
		t.Fatalf("unexpected lifecycle events: %v", evs)
	}
	if evs[0].Severity != SeverityMedium || evs[1].Severity != SeverityLow {
		t.Fatalf("network event severities = %s/%s, want MEDIUM/LOW", evs[0].Severity, evs[1].Severity)
	}
}

func TestOnViolationFiresForAcceptedDetections(t *testing.T) {
	var seen []ViolationType
	cls, _, _ := newTestClassifier(t, Options{
		OnViolation: func(v Violation) { seen = append(seen, v.Type) },
	})

	cls.PageHidden()
	cls.PageHidden() // suppressed
	if len(seen) != 1 || seen[0] != ViolationTabSwitch {
		t.Fatalf("OnViolation calls = %v, want one TAB_SWITCH", seen)
	}
}
