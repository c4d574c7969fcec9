package judge

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare json",
			in:   `{"outcome": "YES"}`,
			want: `{"outcome": "YES"}`,
		},
		{
			name: "json fence",
			in:   "```json\n{\"outcome\": \"YES\"}\n```",
			want: `{"outcome": "YES"}`,
		},
		{
			name: "anonymous fence",
			in:   "```\n{\"outcome\": \"NO\"}\n```",
			want: `{"outcome": "NO"}`,
		},
		{
			name: "prose around json",
			in:   "Here is my judgment:\n{\"outcome\": \"NO\", \"reason\": \"x\"}\nLet me know.",
			want: `{"outcome": "NO", "reason": "x"}`,
		},
		{
			name: "leading whitespace",
			in:   "\n\n  {\"verdict\": \"base\"}  \n",
			want: `{"verdict": "base"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.in); got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
