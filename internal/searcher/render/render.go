// Package render lays out search reports as monospaced text. Widths are
// measured in terminal columns: East Asian wide and fullwidth runes take two
// columns, every other rune takes one.
package render

import (
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"
)

const codeFence = "```"

// Width returns the display width of s in columns.
func Width(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

// PadRight pads s with spaces to cols display columns.
func PadRight(s string, cols int) string {
	if gap := cols - Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// Len returns the length of s in characters.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// SortByLength returns a copy of names ordered by ascending character
// length. Names of equal length keep their relative order.
func SortByLength(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	sort.SliceStable(out, func(i, j int) bool {
		return Len(out[i]) < Len(out[j])
	})
	return out
}

// Pairs lays names out two per line. The left name is padded to the widest
// name in the batch and separated from the right one by a tab; an odd name
// out gets a line of its own.
func Pairs(names []string) []string {
	maxWidth := 0
	for _, n := range names {
		if w := Width(n); w > maxWidth {
			maxWidth = w
		}
	}
	lines := make([]string, 0, (len(names)+1)/2)
	for i := 0; i < len(names); i += 2 {
		if i+1 == len(names) {
			lines = append(lines, names[i])
			break
		}
		lines = append(lines, PadRight(names[i], maxWidth)+"\t"+names[i+1])
	}
	return lines
}

// Section is one result block: a bracketed title and its entries.
type Section struct {
	Title   string
	Entries []string
}

// Report is a header followed by sections, each introduced by a separator
// rule.
type Report struct {
	Header         string
	Sections       []Section
	SeparatorWidth int
}

// String renders the report. Entries are laid out with Pairs in the order
// given.
func (r Report) String() string {
	rule := strings.Repeat("-", r.SeparatorWidth)
	lines := []string{r.Header, ""}
	for _, s := range r.Sections {
		lines = append(lines, rule, "【"+s.Title+"】")
		lines = append(lines, Pairs(s.Entries)...)
	}
	return strings.Join(lines, "\n")
}

// Fit wraps text in a code block when it is at most maxChars characters
// long. It reports false, and returns "", when the text is too long.
func Fit(text string, maxChars int) (string, bool) {
	if Len(text) > maxChars {
		return "", false
	}
	return codeFence + "\n" + text + "\n" + codeFence, true
}
