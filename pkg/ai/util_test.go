package ai

import (
	"testing"
)

type testPayload struct {
	Nodes []struct {
		Label string `json:"label"`
	} `json:"nodes"`
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no fences",
			input: `{"nodes": []}`,
			want:  `{"nodes": []}`,
		},
		{
			name:  "plain fences",
			input: "```\n{\"nodes\": []}\n```",
			want:  `{"nodes": []}`,
		},
		{
			name:  "json fences",
			input: "```json\n{\"nodes\": []}\n```",
			want:  `{"nodes": []}`,
		},
		{
			name:  "surrounding whitespace",
			input: "  \n```json\n{}\n```  ",
			want:  `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFences(tt.input); got != tt.want {
				t.Fatalf("unexpected result: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnmarshalFlexible(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{
			name:  "standard json",
			input: `{"nodes": [{"label": "Alice"}]}`,
			want:  1,
		},
		{
			name:  "double encoded",
			input: `"{\"nodes\": [{\"label\": \"Alice\"}]}"`,
			want:  1,
		},
		{
			name:  "malformed but repairable",
			input: `{nodes: [{label: "Alice"}, {label: "Bob"},]}`,
			want:  2,
		},
		{
			name:    "not json at all",
			input:   `Invalid JSON`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out testPayload
			err := UnmarshalFlexible(tt.input, &out)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(out.Nodes) != tt.want {
				t.Fatalf("expected %d nodes, got %d", tt.want, len(out.Nodes))
			}
		})
	}
}

func TestNumTokensForMessages(t *testing.T) {
	messages := []ChatMessage{
		{Role: "user", Message: "Hello there"},
		{Role: "assistant", Message: "How are you feeling today?"},
	}

	count, err := NumTokensForMessages(messages, "gpt-4o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count <= perReplyOverhead+2*perMessageOverhead {
		t.Fatalf("expected content tokens on top of overhead, got %d", count)
	}

	// Unknown models fall back to the default encoding instead of failing.
	fallback, err := NumTokensForMessages(messages, "model-that-does-not-exist")
	if err != nil {
		t.Fatalf("unexpected error for unknown model: %v", err)
	}
	if fallback <= 0 {
		t.Fatalf("expected positive token count, got %d", fallback)
	}
}
