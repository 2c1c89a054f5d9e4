package client

import "time"

// Metrics is a point-in-time snapshot of client counters.
type Metrics struct {
	ClientID        string        `json:"client_id"`
	State           string        `json:"state"`
	Uptime          time.Duration `json:"uptime"`
	RequestsTotal   int64         `json:"requests_total"`
	ResponsesTotal  int64         `json:"responses_total"`
	ErrorsTotal     int64         `json:"errors_total"`
	PendingRequests int           `json:"pending_requests"`
}

// Metrics returns the current counter snapshot. Collection is gated by
// the enable_metrics config flag; when disabled the snapshot is zero.
func (c *Client) Metrics() Metrics {
	if !c.cfg.EnableMetrics {
		return Metrics{}
	}
	return Metrics{
		ClientID:        c.clientID,
		State:           c.State().String(),
		Uptime:          time.Since(c.startTime),
		RequestsTotal:   c.requestsTotal.Load(),
		ResponsesTotal:  c.responsesTotal.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		PendingRequests: c.pending.Len(),
	}
}
