// Package htmlsanitize strips markup from operator-supplied free text (approval
// reasons, audit notes) before it is persisted or echoed back to an admin UI.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNoteLength caps a stored note, in runes.
const MaxNoteLength = 500

var strict = bluemonday.StrictPolicy()

// PlainText removes all HTML from s, decodes entities produced by the policy,
// trims it and truncates it to MaxNoteLength runes.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	out := html.UnescapeString(strict.Sanitize(s))
	out = strings.TrimSpace(out)
	if r := []rune(out); len(r) > MaxNoteLength {
		out = string(r[:MaxNoteLength])
	}
	return out
}
