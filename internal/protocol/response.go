package protocol

import (
	"encoding/json"
	"time"
)

// ResponseMeta is the metadata envelope carried by responses.
type ResponseMeta struct {
	Timestamp       time.Time       `json:"timestamp,omitempty"`
	ProtocolVersion string          `json:"protocolVersion,omitempty"`
	ProcessingTime  float64         `json:"processingTime,omitempty"`
	ServerInfo      json.RawMessage `json:"serverInfo,omitempty"`
	LearningSignals json.RawMessage `json:"learningSignals,omitempty"`
}

// Response is an inbound message matched to a request by id. Result and
// Error are mutually exclusive. A response with an empty id is a server
// notification, not a reply.
type Response struct {
	ID       string          `json:"id"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    *Error          `json:"error,omitempty"`
	Context  *Context        `json:"context,omitempty"`
	Metadata *ResponseMeta   `json:"metadata,omitempty"`
}

// IsSuccess reports whether the response carries a result rather than an
// error.
func (r *Response) IsSuccess() bool {
	return r.Error == nil
}

// ParseResponse decodes a wire message. Unknown top-level fields are
// ignored, never rejected.
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &Error{Code: CodeParseError, Type: "ParseError", Message: err.Error()}
	}
	return &resp, nil
}
