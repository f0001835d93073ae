package proctor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// BatchResult is the server's answer to a delivered violation batch.
type BatchResult struct {
	ViolationsPersisted int      `json:"violationsPersisted"`
	SuspendedSessionIDs []string `json:"suspendedSessionIds"`
}

// SubmissionItem is one piece of unsaved work carried by an auto-submit.
type SubmissionItem struct {
	ProblemID     uint   `json:"problemId"`
	AnswerPayload string `json:"answerPayload"`
	Language      string `json:"language,omitempty"`
}

// AutoSubmission is the fire-and-forget payload preserving unsaved work.
type AutoSubmission struct {
	Items  []SubmissionItem `json:"items"`
	Reason string           `json:"reason"`
	Round  int              `json:"round"`
}

// Transport delivers telemetry to the backend. PostViolations and
// PostEvents await a response and are retried by the queue; the Beacon
// variants are fire-and-forget, used at page teardown when nothing may
// block, and must not wait on the network.
type Transport interface {
	PostViolations(ctx context.Context, sessionID string, batch []Violation) (*BatchResult, error)
	PostEvents(ctx context.Context, sessionID string, batch []LifecycleEvent) error
	BeaconViolations(sessionID string, batch []Violation)
	BeaconEvents(sessionID string, batch []LifecycleEvent)
	BeaconSubmission(sessionID string, sub AutoSubmission)
}

// StatusError is a non-2xx HTTP answer. 4xx is permanent (the batch is
// malformed or unauthorized and will never succeed); 5xx is transient.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("proctor: server returned %d", e.Code)
}

// isPermanent reports whether err can never succeed on retry.
func isPermanent(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

type violationEntry struct {
	SessionID string    `json:"sessionId"`
	Violation Violation `json:"violation"`
}

type eventEntry struct {
	SessionID string    `json:"sessionId"`
	EventType string    `json:"eventType"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// HTTPTransport talks to the aggregation backend over JSON/HTTP.
type HTTPTransport struct {
	BaseURL string
	Token   string // bearer token for the exam-taker's session
	Client  *http.Client
	Logger  *zerolog.Logger
}

func NewHTTPTransport(baseURL, token string, logger *zerolog.Logger) *HTTPTransport {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &HTTPTransport{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Logger:  logger,
	}
}

func (t *HTTPTransport) PostViolations(ctx context.Context, sessionID string, batch []Violation) (*BatchResult, error) {
	entries := make([]violationEntry, 0, len(batch))
	for _, v := range batch {
		entries = append(entries, violationEntry{SessionID: sessionID, Violation: v})
	}
	var wrapper struct {
		Success             bool     `json:"success"`
		ViolationsPersisted int      `json:"violationsPersisted"`
		SuspendedSessionIDs []string `json:"suspendedSessionIds"`
	}
	if err := t.post(ctx, "/api/v1/violations/batch", entries, &wrapper); err != nil {
		return nil, err
	}
	return &BatchResult{
		ViolationsPersisted: wrapper.ViolationsPersisted,
		SuspendedSessionIDs: wrapper.SuspendedSessionIDs,
	}, nil
}

func (t *HTTPTransport) PostEvents(ctx context.Context, sessionID string, batch []LifecycleEvent) error {
	entries := make([]eventEntry, 0, len(batch))
	for _, ev := range batch {
		entries = append(entries, eventEntry{
			SessionID: sessionID,
			EventType: ev.Kind,
			Severity:  ev.Severity,
			Timestamp: ev.Timestamp,
		})
	}
	return t.post(ctx, "/api/v1/events", entries, nil)
}

func (t *HTTPTransport) BeaconViolations(sessionID string, batch []Violation) {
	entries := make([]violationEntry, 0, len(batch))
	for _, v := range batch {
		entries = append(entries, violationEntry{SessionID: sessionID, Violation: v})
	}
	t.beacon("/api/v1/violations/batch", entries)
}

func (t *HTTPTransport) BeaconEvents(sessionID string, batch []LifecycleEvent) {
	entries := make([]eventEntry, 0, len(batch))
	for _, ev := range batch {
		entries = append(entries, eventEntry{
			SessionID: sessionID,
			EventType: ev.Kind,
			Severity:  ev.Severity,
			Timestamp: ev.Timestamp,
		})
	}
	t.beacon("/api/v1/events", entries)
}

func (t *HTTPTransport) BeaconSubmission(sessionID string, sub AutoSubmission) {
	t.beacon("/api/v1/submissions/auto", sub)
}

// beacon dispatches without waiting for, or reading, the response. The
// server must treat the payload idempotently since nobody observes the
// outcome here.
func (t *HTTPTransport) beacon(path string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	req, err := http.NewRequest(http.MethodPost, t.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.Token)
	go func() {
		resp, err := t.Client.Do(req)
		if err != nil {
			t.Logger.Debug().Err(err).Str("path", path).Msg("beacon dispatch failed")
			return
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
}

func (t *HTTPTransport) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.Token)

	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
