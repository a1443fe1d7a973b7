package common

import (
	"encoding/json"
	"testing"
)

func TestNodeRef_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantRef NodeRef
		wantErr bool
	}{
		{
			name:    "label string",
			input:   `"Steve Jobs"`,
			wantRef: NodeRef{Label: "Steve Jobs"},
		},
		{
			name:    "bare number",
			input:   `2`,
			wantRef: NodeRef{Position: 2, IsNumber: true},
		},
		{
			name:    "quoted number",
			input:   `"3"`,
			wantRef: NodeRef{Position: 3, IsNumber: true},
		},
		{
			name:    "invalid",
			input:   `{"oops": true}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ref NodeRef
			err := json.Unmarshal([]byte(tt.input), &ref)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ref != tt.wantRef {
				t.Fatalf("unexpected ref: got %+v, want %+v", ref, tt.wantRef)
			}
		})
	}
}

func TestParseNodeRef(t *testing.T) {
	tests := []struct {
		input string
		want  NodeRef
	}{
		{input: "Alice", want: NodeRef{Label: "Alice"}},
		{input: "2", want: NodeRef{Position: 2, IsNumber: true}},
		{input: " 7 ", want: NodeRef{Position: 7, IsNumber: true}},
	}
	for _, tt := range tests {
		if got := ParseNodeRef(tt.input); got != tt.want {
			t.Errorf("ParseNodeRef(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestEdgeCandidate_RoundTrip(t *testing.T) {
	input := `{"label": "was run by", "source": 1, "target": "Steve Jobs", "spans": [[1, 3]]}`

	var edge EdgeCandidate
	if err := json.Unmarshal([]byte(input), &edge); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !edge.Source.IsNumber || edge.Source.Position != 1 {
		t.Fatalf("unexpected source: %+v", edge.Source)
	}
	if edge.Target.Label != "Steve Jobs" {
		t.Fatalf("unexpected target: %+v", edge.Target)
	}
	if len(edge.Spans) != 1 || len(edge.Spans[0]) != 2 {
		t.Fatalf("unexpected spans: %+v", edge.Spans)
	}
}
