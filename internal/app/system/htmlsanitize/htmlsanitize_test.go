package htmlsanitize_test

import (
	"strings"
	"testing"

	"github.com/dalemusser/portalauthz/internal/app/system/htmlsanitize"
)

func TestPlainText_Empty(t *testing.T) {
	if got := htmlsanitize.PlainText(""); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestPlainText_Unchanged(t *testing.T) {
	if got := htmlsanitize.PlainText("Approved by den leader"); got != "Approved by den leader" {
		t.Errorf("expected plain text unchanged, got %q", got)
	}
}

func TestPlainText_RemovesScript(t *testing.T) {
	got := htmlsanitize.PlainText("ok<script>alert('xss')</script>")
	if strings.Contains(got, "script") || strings.Contains(got, "alert") {
		t.Errorf("expected script removed, got %q", got)
	}
}

func TestPlainText_StripsTags(t *testing.T) {
	got := htmlsanitize.PlainText("<b>bold</b> & <i>italic</i>")
	if got != "bold & italic" {
		t.Errorf("got %q, want %q", got, "bold & italic")
	}
}

func TestPlainText_Truncates(t *testing.T) {
	got := htmlsanitize.PlainText(strings.Repeat("a", htmlsanitize.MaxNoteLength+50))
	if len([]rune(got)) != htmlsanitize.MaxNoteLength {
		t.Errorf("len = %d, want %d", len([]rune(got)), htmlsanitize.MaxNoteLength)
	}
}
