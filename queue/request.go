// Package queue implements the durable, ordered log of deferred mutating
// operations awaiting delivery.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mdnaeem95/stupify-extension/cache"
	"github.com/mdnaeem95/stupify-extension/errors"
)

// Kind determines the replay target and payload shape of a queued request.
type Kind string

const (
	KindExplanation Kind = "explanation"
	KindAnalytics   Kind = "analytics"
	KindRating      Kind = "rating"
)

// IsValidKind returns true if the string is a valid request kind.
func IsValidKind(s string) bool {
	switch Kind(s) {
	case KindExplanation, KindAnalytics, KindRating:
		return true
	default:
		return false
	}
}

// Request is a deferred mutating operation. Payload is a tagged union keyed
// by Kind; use the typed constructors and Decode helpers rather than writing
// raw JSON into it.
type Request struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Endpoint   string          `json:"endpoint"`
	Method     string          `json:"method"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	RetryCount int             `json:"retry_count"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// ExplanationPayload is the replay body for a deferred explanation request.
type ExplanationPayload struct {
	Question string     `json:"question"`
	Tier     cache.Tier `json:"tier"`
}

// RatingPayload is the replay body for a deferred rating submission.
type RatingPayload struct {
	ExplanationID string `json:"explanation_id"`
	Rating        int    `json:"rating"`
	Comment       string `json:"comment,omitempty"`
}

// AnalyticsEvent is a single usage event captured while offline.
type AnalyticsEvent struct {
	Name       string                 `json:"name"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	RecordedAt time.Time              `json:"recorded_at"`
}

// AnalyticsPayload is the replay body for a batch of deferred analytics
// events.
type AnalyticsPayload struct {
	Events []AnalyticsEvent `json:"events"`
}

// NewExplanationRequest builds a queued explanation request.
func NewExplanationRequest(endpoint string, payload ExplanationPayload) (*Request, error) {
	return newRequest(KindExplanation, endpoint, "POST", payload)
}

// NewRatingRequest builds a queued rating submission.
func NewRatingRequest(endpoint string, payload RatingPayload) (*Request, error) {
	return newRequest(KindRating, endpoint, "POST", payload)
}

// NewAnalyticsRequest builds a queued analytics batch.
func NewAnalyticsRequest(endpoint string, payload AnalyticsPayload) (*Request, error) {
	return newRequest(KindAnalytics, endpoint, "POST", payload)
}

// NewRawRequest builds a queued request from an already-encoded body. Used by
// the gateway for generic mutating calls whose shape it doesn't own.
func NewRawRequest(kind Kind, endpoint, method string, body json.RawMessage) (*Request, error) {
	if !IsValidKind(string(kind)) {
		return nil, errors.Newf("invalid request kind %q", kind)
	}
	return &Request{
		ID:         uuid.NewString(),
		Kind:       kind,
		Endpoint:   endpoint,
		Method:     method,
		Payload:    body,
		EnqueuedAt: time.Now(),
	}, nil
}

func newRequest(kind Kind, endpoint, method string, payload interface{}) (*Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal %s payload", kind)
	}
	return &Request{
		ID:         uuid.NewString(),
		Kind:       kind,
		Endpoint:   endpoint,
		Method:     method,
		Payload:    body,
		EnqueuedAt: time.Now(),
	}, nil
}

// DecodeExplanation decodes the payload of an explanation-kind request.
func (r *Request) DecodeExplanation() (*ExplanationPayload, error) {
	if r.Kind != KindExplanation {
		return nil, errors.Newf("request %s is %s, not explanation", r.ID, r.Kind)
	}
	var p ExplanationPayload
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return nil, errors.Wrap(err, "failed to decode explanation payload")
	}
	return &p, nil
}

// DecodeRating decodes the payload of a rating-kind request.
func (r *Request) DecodeRating() (*RatingPayload, error) {
	if r.Kind != KindRating {
		return nil, errors.Newf("request %s is %s, not rating", r.ID, r.Kind)
	}
	var p RatingPayload
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return nil, errors.Wrap(err, "failed to decode rating payload")
	}
	return &p, nil
}

// DecodeAnalytics decodes the payload of an analytics-kind request.
func (r *Request) DecodeAnalytics() (*AnalyticsPayload, error) {
	if r.Kind != KindAnalytics {
		return nil, errors.Newf("request %s is %s, not analytics", r.ID, r.Kind)
	}
	var p AnalyticsPayload
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return nil, errors.Wrap(err, "failed to decode analytics payload")
	}
	return &p, nil
}
