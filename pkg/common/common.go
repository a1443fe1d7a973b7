// Package common holds the candidate types exchanged between the extraction
// service adapter, the entity-resolution store, and the chat reference
// linker.
package common

import (
	"encoding/json"
	"strconv"
	"strings"
)

// NodeCandidate is a graph node proposed by the extraction service for one
// document. Label is a direct word or phrase from the input; Spans lists the
// token-index runs where the label occurs; Type, when present, must be one
// of the store's configured node types.
type NodeCandidate struct {
	Label string  `json:"label"`
	Spans [][]int `json:"spans"`
	Type  string  `json:"type,omitempty"`
}

// EdgeCandidate is a directed relation proposed by the extraction service.
// Source and Target are opaque references into the candidate node set:
// usually a node label, sometimes a numeric position or id.
type EdgeCandidate struct {
	Label  string  `json:"label"`
	Source NodeRef `json:"source"`
	Target NodeRef `json:"target"`
	Spans  [][]int `json:"spans"`
}

// NodeRef is an endpoint reference inside an EdgeCandidate. The extraction
// service is inconsistent about whether it emits labels or numbers, so both
// are accepted.
type NodeRef struct {
	Label    string
	Position int64
	IsNumber bool
}

// ParseNodeRef builds a NodeRef from a plain string endpoint. Numbers
// arrive quoted often enough to be worth a parse attempt.
func ParseNodeRef(s string) NodeRef {
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return NodeRef{Position: n, IsNumber: true}
	}
	return NodeRef{Label: s}
}

// UnmarshalJSON accepts either a JSON string (treated as a label) or a JSON
// number (treated as a position or node id).
func (r *NodeRef) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = ParseNodeRef(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	r.Position = n
	r.IsNumber = true
	return nil
}

// MarshalJSON renders the reference back in the shape it was parsed from.
func (r NodeRef) MarshalJSON() ([]byte, error) {
	if r.IsNumber {
		return json.Marshal(r.Position)
	}
	return json.Marshal(r.Label)
}

// String returns a readable form for logging.
func (r NodeRef) String() string {
	if r.IsNumber {
		return strconv.FormatInt(r.Position, 10)
	}
	return r.Label
}
