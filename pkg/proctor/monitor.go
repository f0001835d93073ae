package proctor

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Monitor is the capability object returned by Start. The hosting page
// holds this reference and invokes Stop directly; there is no ambient
// global to reach into.
type Monitor struct {
	opts       Options
	classifier *classifier
	queue      *eventQueue
	cancel     context.CancelFunc
	stopOnce   sync.Once
}

// Start acquires the camera, begins the sampling and flush loops, and
// returns the running monitor. A camera permission refusal is fatal: it is
// recorded as a HIGH violation, surfaced through OnPermissionDenied, and
// Start returns the error so the host can block the exam.
func Start(ctx context.Context, opts Options) (*Monitor, error) {
	opts = opts.withDefaults()
	if opts.SessionID == "" || opts.SubjectID == "" {
		return nil, errors.New("proctor: SessionID and SubjectID are required")
	}
	if opts.Transport == nil || opts.Camera == nil || opts.Frames == nil {
		return nil, errors.New("proctor: Transport, Camera and Frames are required")
	}

	queue := newEventQueue(opts)
	cls := newClassifier(opts, queue)

	// May hang on the user permission prompt until ctx is cancelled.
	if err := opts.Camera.Acquire(ctx); err != nil {
		cls.PermissionDenied(err)
		queue.FinalFlush()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m := &Monitor{
		opts:       opts,
		classifier: cls,
		queue:      queue,
		cancel:     cancel,
	}

	queue.AddEvent(LifecycleEvent{Kind: EventSessionStart, Severity: SeverityLow, Timestamp: time.Now()})
	go queue.run(runCtx)
	go m.sampleLoop(runCtx)
	return m, nil
}

func (m *Monitor) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := m.opts.Frames.Capture(ctx)
			if err != nil {
				// One bad frame must not kill the monitoring loop.
				m.opts.Logger.Debug().Err(err).Msg("frame capture failed, skipping sample")
				continue
			}
			m.classifier.ProcessFrame(frame)
		}
	}
}

// PageHidden reports the page visibility state turning hidden.
func (m *Monitor) PageHidden() {
	m.classifier.PageHidden()
}

// WindowBlurred reports the window losing focus.
func (m *Monitor) WindowBlurred() {
	m.classifier.WindowBlurred()
}

// NetworkChanged reports a connectivity transition. While offline the
// queue holds its entries for the next flush.
func (m *Monitor) NetworkChanged(online bool) {
	m.classifier.NetworkChanged(online)
	m.queue.SetOnline(online)
}

// CameraEnded reports a camera track termination. The first restarts are
// attempted silently; past the cap the condition is terminal.
func (m *Monitor) CameraEnded(ctx context.Context) {
	if !m.classifier.CameraEnded() {
		return
	}
	if err := m.opts.Camera.Restart(ctx); err != nil {
		m.opts.Logger.Warn().Err(err).Msg("camera restart failed")
	}
}

// Flush forces an immediate delivery attempt outside the timer.
func (m *Monitor) Flush(ctx context.Context) {
	m.queue.Flush(ctx)
}

// Stop tears down the camera stream, the detection loop and the queue
// timers, emitting the end-of-session event and one best-effort beacon
// flush. Safe to call more than once; monitoring must not outlive the
// exam page.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.queue.AddEvent(LifecycleEvent{Kind: EventSessionEnd, Severity: SeverityLow, Timestamp: time.Now()})
		m.cancel()
		m.queue.FinalFlush()
		m.opts.Camera.Release()
	})
}
