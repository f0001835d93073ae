package proctor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeCamera struct {
	mu         sync.Mutex
	acquireErr error
	restarts   int
	released   int
}

func (f *fakeCamera) Acquire(context.Context) error { return f.acquireErr }

func (f *fakeCamera) Restart(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	return nil
}

func (f *fakeCamera) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
}

func (f *fakeCamera) restartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restarts
}

type fakeFrames struct {
	mu    sync.Mutex
	frame Frame
	err   error
}

func (f *fakeFrames) Capture(context.Context) (Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame, f.err
}

func testOptions(ft *fakeTransport, cam *fakeCamera, frames *fakeFrames) Options {
	return Options{
		SessionID:      "sess-1",
		SubjectID:      "subj-1",
		ExamKind:       "CODING",
		SampleInterval: 5 * time.Millisecond,
		FlushInterval:  5 * time.Millisecond,
		RetryBaseDelay: time.Millisecond,
		Transport:      ft,
		Camera:         cam,
		Frames:         frames,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartFailsOnPermissionDenied(t *testing.T) {
	ft := &fakeTransport{}
	cam := &fakeCamera{acquireErr: errors.New("NotAllowedError")}
	var denied error
	opts := testOptions(ft, cam, &fakeFrames{})
	opts.OnPermissionDenied = func(err error) { denied = err }

	m, err := Start(context.Background(), opts)
	if err == nil || m != nil {
		t.Fatal("Start must fail when the camera is refused")
	}
	if denied == nil {
		t.Fatal("OnPermissionDenied must fire")
	}
	if len(ft.beaconViolations) != 1 || ft.beaconViolations[0][0].Type != ViolationCameraBlocked {
		t.Fatalf("refusal must be recorded and flushed, got %v", ft.beaconViolations)
	}
}

func TestMonitorDetectsAndDeliversViolations(t *testing.T) {
	ft := &fakeTransport{}
	cam := &fakeCamera{}
	frames := &fakeFrames{frame: Frame{Faces: []Face{centeredFace(), centeredFace()}}}

	m, err := Start(context.Background(), testOptions(ft, cam, frames))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	waitFor(t, func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		for _, batch := range ft.violationCalls {
			for _, v := range batch {
				if v.Type == ViolationMultipleFaces {
					return true
				}
			}
		}
		return false
	}, "MULTIPLE_FACES was never delivered")
}

func TestCaptureErrorsAreSwallowed(t *testing.T) {
	ft := &fakeTransport{}
	cam := &fakeCamera{}
	frames := &fakeFrames{err: errors.New("inference failed")}

	m, err := Start(context.Background(), testOptions(ft, cam, frames))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	m.Stop()

	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.violationCalls) != 0 && len(ft.violationCalls[0]) != 0 {
		t.Fatalf("capture errors must not become violations, got %v", ft.violationCalls)
	}
}

func TestStopReleasesCameraAndEmitsEndEvent(t *testing.T) {
	ft := &fakeTransport{}
	cam := &fakeCamera{}
	frames := &fakeFrames{frame: Frame{Faces: []Face{centeredFace()}}}

	m, err := Start(context.Background(), testOptions(ft, cam, frames))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Stop()
	m.Stop() // idempotent

	if cam.released != 1 {
		t.Fatalf("camera released %d times, want 1", cam.released)
	}

	sawEnd := func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		for _, batch := range append(ft.eventCalls, ft.beaconEvents...) {
			for _, ev := range batch {
				if ev.Kind == EventSessionEnd {
					return true
				}
			}
		}
		return false
	}
	waitFor(t, sawEnd, "end event never flushed")
}

func TestCameraRestartsAreCapped(t *testing.T) {
	ft := &fakeTransport{}
	cam := &fakeCamera{}
	frames := &fakeFrames{frame: Frame{Faces: []Face{centeredFace()}}}

	m, err := Start(context.Background(), testOptions(ft, cam, frames))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	ctx := context.Background()
	m.CameraEnded(ctx)
	m.CameraEnded(ctx)
	m.CameraEnded(ctx) // terminal, no restart
	if got := cam.restartCount(); got != 2 {
		t.Fatalf("restarts = %d, want 2", got)
	}
}
