package domain

import "encoding/json"

// RelayResult is the outcome of a successful remote call.
type RelayResult struct {
	StatusCode int `json:"status"`
	// Body is the raw JSON response. Nil when Accepted is set.
	Body json.RawMessage `json:"body,omitempty"`
	// Accepted marks a success response without content.
	Accepted bool `json:"accepted,omitempty"`
}

// Decode unmarshals the body into v. It is a no-op for accepted results.
func (r *RelayResult) Decode(v any) error {
	if r.Accepted || len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}
