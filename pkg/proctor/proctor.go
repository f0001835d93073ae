// Package proctor implements the exam-side monitoring pipeline: a face
// sampling classifier, a per-type cooldown gate, a batching telemetry
// queue with bounded retry, and an auto-submit coordinator that preserves
// in-progress work when the exam surface is torn down.
//
// The package is a library embedded in the host exam process; it never
// writes through the global logger and never blocks the exam flow on
// network errors. Telemetry loss is an accepted failure mode.
package proctor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type ViolationType string

const (
	ViolationNoFace          ViolationType = "NO_FACE"
	ViolationMultipleFaces   ViolationType = "MULTIPLE_FACES"
	ViolationLookingAway     ViolationType = "LOOKING_AWAY"
	ViolationDifferentPerson ViolationType = "DIFFERENT_PERSON"
	ViolationTabSwitch       ViolationType = "TAB_SWITCH"
	ViolationWindowBlur      ViolationType = "WINDOW_BLUR"
	ViolationCameraBlocked   ViolationType = "CAMERA_BLOCKED"
)

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Violation is one accepted detection, stamped with the local event time.
type Violation struct {
	Type      ViolationType `json:"type"`
	Severity  Severity      `json:"severity"`
	Details   string        `json:"details,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// LifecycleEvent is non-violation telemetry (session start/end, network
// state). It never feeds the suspicion score.
type LifecycleEvent struct {
	Kind      string    `json:"eventType"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventSessionStart    = "start"
	EventSessionEnd      = "end"
	EventNetworkLost     = "network_lost"
	EventNetworkRestored = "network_restored"
)

type Point struct {
	X float64
	Y float64
}

// Landmarks are the facial keypoints the head-pose proxy needs.
type Landmarks struct {
	NoseTip  Point
	LeftEye  Point
	RightEye Point
}

// Face is one detection in a frame. Embedding may be empty when the
// detector runs without the recognition model loaded.
type Face struct {
	Landmarks Landmarks
	Embedding []float64
}

// Frame is the result of one sampling pass over the camera feed.
type Frame struct {
	Faces []Face
}

// FrameSource produces detection frames from the live camera feed. A
// failed capture is swallowed for that sample; one bad frame must not
// kill the monitoring loop.
type FrameSource interface {
	Capture(ctx context.Context) (Frame, error)
}

// Camera abstracts stream acquisition. Acquire may hang on a user
// permission prompt until the context is cancelled.
type Camera interface {
	Acquire(ctx context.Context) error
	Restart(ctx context.Context) error
	Release()
}

// Options configures a Monitor. The detection and delivery tunables ship
// with the reference defaults but are deliberately configurable; the
// original values were tuned by hand, not derived.
type Options struct {
	SessionID string
	SubjectID string
	ExamKind  string // CODING | MCQ | MIXED

	SampleInterval         time.Duration // default 3s
	NoFaceSamples          int           // consecutive zero-face samples, default 2
	LookingAwaySamples     int           // consecutive off-center samples, default 3
	LookingAwayOffsetRatio float64       // nose offset / inter-eye distance, default 0.30
	EmbeddingDistanceMax   float64       // default 0.6
	ReferenceEmbedding     []float64     // optional, enables DIFFERENT_PERSON

	CooldownWindow    time.Duration // per violation type, default 90s
	FlushInterval     time.Duration // default 5s
	MaxRetries        int           // per batch after the first attempt, default 2
	RetryBaseDelay    time.Duration // default 1s, doubles per attempt
	MaxCameraRestarts int           // default 2, third failure is terminal

	Camera    Camera
	Frames    FrameSource
	Transport Transport
	Logger    *zerolog.Logger

	// OnViolation fires for every detection accepted by the cooldown
	// gate, for the hosting UI's toast/tally display.
	OnViolation func(Violation)
	// OnPermissionDenied fires when camera acquisition is refused; the
	// hosting page must block exam progress.
	OnPermissionDenied func(error)
	// OnSuspended reports session IDs the server newly suspended in
	// response to a delivered batch.
	OnSuspended func(sessionIDs []string)
}

func (o Options) withDefaults() Options {
	if o.SampleInterval <= 0 {
		o.SampleInterval = 3 * time.Second
	}
	if o.NoFaceSamples <= 0 {
		o.NoFaceSamples = 2
	}
	if o.LookingAwaySamples <= 0 {
		o.LookingAwaySamples = 3
	}
	if o.LookingAwayOffsetRatio <= 0 {
		o.LookingAwayOffsetRatio = 0.30
	}
	if o.EmbeddingDistanceMax <= 0 {
		o.EmbeddingDistanceMax = 0.6
	}
	if o.CooldownWindow <= 0 {
		o.CooldownWindow = 90 * time.Second
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = 2
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = time.Second
	}
	if o.MaxCameraRestarts <= 0 {
		o.MaxCameraRestarts = 2
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	return o
}
