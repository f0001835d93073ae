package proctor

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// telemetrySink is what the classifier emits into; satisfied by
// eventQueue, and by fakes in tests.
type telemetrySink interface {
	Add(Violation)
	AddEvent(LifecycleEvent)
}

// classifier turns raw sensor and page signals into typed violations.
// Consecutive-sample counters implement the debouncing rules: a single
// zero-face frame is noise, a run of them is a violation.
type classifier struct {
	opts   Options
	gate   *cooldownGate
	sink   telemetrySink
	logger *zerolog.Logger
	now    func() time.Time

	noFaceRun      int
	lookingAwayRun int
	cameraFailures int
}

func newClassifier(opts Options, sink telemetrySink) *classifier {
	return &classifier{
		opts:   opts,
		gate:   newCooldownGate(opts.CooldownWindow),
		sink:   sink,
		logger: opts.Logger,
		now:    time.Now,
	}
}

// ProcessFrame applies the face-count rules to one sampled frame.
func (c *classifier) ProcessFrame(f Frame) {
	switch n := len(f.Faces); {
	case n == 0:
		c.lookingAwayRun = 0
		c.noFaceRun++
		if c.noFaceRun >= c.opts.NoFaceSamples {
			c.emit(ViolationNoFace, SeverityHigh, "no face detected in frame")
		}
	case n >= 2:
		// Fires immediately; no consecutive-sample requirement.
		c.noFaceRun = 0
		c.lookingAwayRun = 0
		c.emit(ViolationMultipleFaces, SeverityHigh, fmt.Sprintf("%d faces detected", n))
	default:
		c.noFaceRun = 0
		face := f.Faces[0]
		if lookingAway(face.Landmarks, c.opts.LookingAwayOffsetRatio) {
			c.lookingAwayRun++
			if c.lookingAwayRun >= c.opts.LookingAwaySamples {
				c.emit(ViolationLookingAway, SeverityMedium, "head turned away from screen")
			}
		} else {
			c.lookingAwayRun = 0
		}
		if len(c.opts.ReferenceEmbedding) > 0 && len(face.Embedding) > 0 {
			if d := euclidean(face.Embedding, c.opts.ReferenceEmbedding); d > c.opts.EmbeddingDistanceMax {
				c.emit(ViolationDifferentPerson, SeverityHigh,
					fmt.Sprintf("embedding distance %.2f exceeds %.2f", d, c.opts.EmbeddingDistanceMax))
			}
		}
	}
}

// PageHidden handles the page visibility state turning hidden.
func (c *classifier) PageHidden() {
	c.emit(ViolationTabSwitch, SeverityHigh, "page became hidden")
}

// WindowBlurred handles the window losing focus.
func (c *classifier) WindowBlurred() {
	c.emit(ViolationWindowBlur, SeverityMedium, "window lost focus")
}

// CameraEnded handles a camera track termination. It reports whether a
// silent restart should still be attempted; after MaxCameraRestarts
// failures the condition is terminal and restarts stop.
func (c *classifier) CameraEnded() bool {
	c.cameraFailures++
	if c.cameraFailures > c.opts.MaxCameraRestarts {
		c.emit(ViolationCameraBlocked, SeverityHigh, "camera unavailable, giving up restarts")
		return false
	}
	c.emit(ViolationCameraBlocked, SeverityHigh,
		fmt.Sprintf("camera track ended, restart attempt %d", c.cameraFailures))
	return true
}

// PermissionDenied records the refusal and surfaces it to the host page,
// which must block exam progress.
func (c *classifier) PermissionDenied(err error) {
	c.emit(ViolationCameraBlocked, SeverityHigh, "camera permission denied")
	if c.opts.OnPermissionDenied != nil {
		c.opts.OnPermissionDenied(err)
	}
}

// NetworkChanged logs connectivity transitions as lifecycle events; they
// never feed the suspicion score.
func (c *classifier) NetworkChanged(online bool) {
	ev := LifecycleEvent{Kind: EventNetworkLost, Severity: SeverityMedium, Timestamp: c.now()}
	if online {
		ev.Kind = EventNetworkRestored
		ev.Severity = SeverityLow
	}
	c.sink.AddEvent(ev)
}

// emit pushes a detection through the cooldown gate; suppressed repeats
// produce neither a queue entry nor a UI callback.
func (c *classifier) emit(t ViolationType, sev Severity, details string) {
	now := c.now()
	if !c.gate.Allow(t, now) {
		c.logger.Debug().Str("type", string(t)).Msg("violation suppressed by cooldown")
		return
	}
	v := Violation{Type: t, Severity: sev, Details: details, Timestamp: now}
	if c.opts.OnViolation != nil {
		c.opts.OnViolation(v)
	}
	c.sink.Add(v)
}

// lookingAway computes the head-pose proxy: the nose tip's horizontal
// offset from the eye-center midpoint, normalized by inter-eye distance.
func lookingAway(lm Landmarks, maxRatio float64) bool {
	interEye := math.Hypot(lm.RightEye.X-lm.LeftEye.X, lm.RightEye.Y-lm.LeftEye.Y)
	if interEye == 0 {
		return false
	}
	center := (lm.LeftEye.X + lm.RightEye.X) / 2
	offset := math.Abs(lm.NoseTip.X - center)
	return offset/interEye > maxRatio
}

func euclidean(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
