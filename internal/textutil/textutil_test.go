package textutil

import (
	"errors"
	"testing"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "  Helps with Python  ", "Helps with Python"},
		{"comparison is not markup", "a < b", "a < b"},
		{"tags removed", "<p>Writes <b>Go</b> code</p>", "Writes Go code"},
		{"entities decoded", "<span>R&amp;D helper</span>", "R&D helper"},
		{"blocks separated", "<li>one</li><li>two</li>", "one two"},
		{"script dropped", "<div>visible<script>alert(1)</script></div>", "visible"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHTML(tt.in); got != tt.want {
				t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractBrief_PlainText(t *testing.T) {
	got, err := ExtractBrief([]byte("  I need help with SQL tuning\n"))
	if err != nil {
		t.Fatalf("ExtractBrief: %v", err)
	}
	if got != "I need help with SQL tuning" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBrief_HTML(t *testing.T) {
	got, err := ExtractBrief([]byte("<html><body><h1>Brief</h1><p>Draw diagrams</p></body></html>"))
	if err != nil {
		t.Fatalf("ExtractBrief: %v", err)
	}
	if got != "Brief Draw diagrams" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBrief_Empty(t *testing.T) {
	got, err := ExtractBrief(nil)
	if err != nil || got != "" {
		t.Errorf("ExtractBrief(nil) = %q, %v; want empty, nil", got, err)
	}
}

func TestExtractBrief_Unsupported(t *testing.T) {
	_, err := ExtractBrief([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0})
	if !errors.Is(err, ErrUnsupportedBrief) {
		t.Errorf("err = %v, want ErrUnsupportedBrief", err)
	}
}

func TestExtractBrief_BrokenPDF(t *testing.T) {
	_, err := ExtractBrief([]byte("%PDF-1.4\nnot really a pdf"))
	if err == nil {
		t.Fatal("expected error for truncated pdf")
	}
}

func TestExtractBrief_TooLarge(t *testing.T) {
	_, err := ExtractBrief(make([]byte, MaxBriefSize+1))
	if err == nil {
		t.Fatal("expected size error")
	}
}
