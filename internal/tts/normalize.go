package tts

import (
	"regexp"
	"strings"
)

// Soft and hard caps applied to assistant replies before synthesis. Long
// messages get a UI disclosure; anything past the hard limit is cut.
const (
	SoftLimit = 500
	HardLimit = 1000
)

var (
	reCodeBlock = regexp.MustCompile("(?s)```.*?```")
	reCodeSpan  = regexp.MustCompile("`(.+?)`")
	reBoldStar  = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reItalStar  = regexp.MustCompile(`\*(.+?)\*`)
	reBoldUnder = regexp.MustCompile(`__(.+?)__`)
	reItalUnder = regexp.MustCompile(`_(.+?)_`)
	reLink      = regexp.MustCompile(`\[(.+?)\]\(.+?\)`)
	reHeading   = regexp.MustCompile(`(?m)^#+\s+`)
	reBullet    = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	reNumbered  = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	reSymbols   = regexp.MustCompile(`[#|>]`)
	reNewlines  = regexp.MustCompile(`\n+`)
	reSpaces    = regexp.MustCompile(`\s+`)
)

// Normalize strips markdown so replies read naturally when spoken: emphasis
// markers, code, link syntax (link text kept), heading and list markers.
// Blank lines become sentence breaks. Idempotent.
func Normalize(text string) string {
	text = reCodeBlock.ReplaceAllString(text, "")
	text = reBoldStar.ReplaceAllString(text, "$1")
	text = reItalStar.ReplaceAllString(text, "$1")
	text = reBoldUnder.ReplaceAllString(text, "$1")
	text = reItalUnder.ReplaceAllString(text, "$1")
	text = reCodeSpan.ReplaceAllString(text, "$1")
	text = reLink.ReplaceAllString(text, "$1")
	text = reHeading.ReplaceAllString(text, "")
	text = reBullet.ReplaceAllString(text, "")
	text = reNumbered.ReplaceAllString(text, "")
	text = reSymbols.ReplaceAllString(text, "")
	text = reNewlines.ReplaceAllString(text, ". ")
	text = reSpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Prepare normalizes text and applies the synthesis limits. long is set when
// the cleaned text passes SoftLimit; truncated is set when it had to be cut
// at HardLimit, so the caller can disclose the truncation.
func Prepare(text string) (out string, long, truncated bool) {
	out = Normalize(text)
	runes := []rune(out)
	long = len(runes) > SoftLimit
	if len(runes) > HardLimit {
		out = string(runes[:HardLimit]) + "..."
		truncated = true
	}
	return out, long, truncated
}
