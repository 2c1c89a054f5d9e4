package protocol

import (
	"encoding/json"
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ProtocolVersion is the protocol generation stamped into every message.
const ProtocolVersion = "2.0"

// Priority levels for request metadata.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// RetryPolicy is the optional per-call retry configuration carried in
// request metadata.
type RetryPolicy struct {
	MaxRetries  int  `json:"maxRetries"`
	BackoffMs   int  `json:"backoffMs"`
	Exponential bool `json:"exponential,omitempty"`
}

// RequestMeta is the metadata envelope attached to every outgoing request.
type RequestMeta struct {
	Timestamp       time.Time    `json:"timestamp"`
	ProtocolVersion string       `json:"protocolVersion"`
	Source          string       `json:"source,omitempty"`
	TraceID         string       `json:"traceId,omitempty"`
	SessionID       string       `json:"sessionId,omitempty"`
	Priority        Priority     `json:"priority,omitempty"`
	TimeoutMs       int          `json:"timeoutMs,omitempty"`
	RetryPolicy     *RetryPolicy `json:"retryPolicy,omitempty"`
}

// Request is an outgoing method call. Immutable once handed to a
// transport.
type Request struct {
	ID       string          `json:"id"`
	Method   string          `json:"method"`
	Params   json.RawMessage `json:"params,omitempty"`
	Context  *Context        `json:"context,omitempty"`
	Metadata RequestMeta     `json:"metadata"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewTraceID generates a time-ordered trace identifier.
func NewTraceID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewRequest creates a request with a fresh correlation id, trace id, and
// default metadata. params may be nil or any JSON-serializable value.
func NewRequest(method string, params interface{}) (*Request, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode params: %w", err)
		}
		raw = data
	}

	return &Request{
		ID:     uuid.New().String(),
		Method: method,
		Params: raw,
		Metadata: RequestMeta{
			Timestamp:       time.Now().UTC(),
			ProtocolVersion: ProtocolVersion,
			TraceID:         NewTraceID(),
			Priority:        PriorityNormal,
		},
	}, nil
}

// Validate checks the request before it is handed to a transport.
func (r *Request) Validate() error {
	if r.ID == "" {
		return NewValidationError("request id must not be empty")
	}
	if r.Method == "" {
		return NewValidationError("request method must not be empty")
	}
	return nil
}
