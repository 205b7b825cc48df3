// Package token estimates the processing cost of serialized context blobs.
//
// The estimator uses the conventional 4-characters-per-token approximation.
// It is deliberately cheap: estimates feed optimization accounting, not
// billing, so a fast heuristic beats an exact tokenizer here.
package token

import "encoding/json"

// charsPerToken is the approximation used across the coordination core.
const charsPerToken = 4

// Estimate returns the estimated token cost of a string.
//
// The result is ceil(len(s) / 4). An empty string costs zero tokens.
func Estimate(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// EstimatePayload returns the estimated token cost of a key-value payload
// as it would be transmitted, i.e. of its JSON serialization.
//
// A payload that cannot be serialized costs zero; callers treat the
// estimate as best-effort.
func EstimatePayload(payload map[string]any) int {
	if len(payload) == 0 {
		return 0
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	return Estimate(string(data))
}
