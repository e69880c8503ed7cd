package docker

import "testing"

func TestParseProgress(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		line    string
		percent int
		ok      bool
	}{
		{"bare", "progress=42", 42, true},
		{"with percent sign", "progress=85%", 85, true},
		{"embedded in line", "epoch 3/10 progress=30 loss=0.12", 30, true},
		{"zero", "progress=0", 0, true},
		{"complete", "progress=100", 100, true},
		{"not a number", "progress=done", 0, false},
		{"no marker", "training epoch 3", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			percent, ok := parseProgress(tt.line)
			if ok != tt.ok || percent != tt.percent {
				t.Errorf("parseProgress(%q) = (%d, %v), want (%d, %v)", tt.line, percent, ok, tt.percent, tt.ok)
			}
		})
	}
}

func TestSplitLines(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single line", "hello", []string{"hello"}},
		{"multiple lines", "a\nb\nc", []string{"a", "b", "c"}},
		{"trailing newline", "a\nb\n", []string{"a", "b"}},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}},
		{"blank lines skipped", "a\n\n\nb", []string{"a", "b"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := splitLines(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("splitLines(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("splitLines(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}
