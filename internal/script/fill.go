package script

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// FillOpts tunes the paragraph filler for MSF-type reminders.
type FillOpts struct {
	Width       int    // target line width
	FirstIndent int    // spaces before the first line
	SubsIndent  int    // spaces before subsequent lines
	EndSent     string // sentence-ending characters get two spaces after
	EndSentIg   string // characters ignored when deciding sentence ends
}

// visibleWidth measures a word's display width, treating ANSI escape
// sequences as zero-width and wide runes per their terminal width.
func visibleWidth(s string) int {
	w := 0
	i := 0
	for i < len(s) {
		if s[i] == 0x1b {
			// Skip a CSI sequence through its final byte.
			i++
			if i < len(s) && s[i] == '[' {
				i++
				for i < len(s) && (s[i] < 0x40 || s[i] > 0x7e) {
					i++
				}
				if i < len(s) {
					i++
				}
			}
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		w += runewidth.RuneWidth(r)
		i += size
	}
	return w
}

// endsSentence reports whether a word ends a sentence, skipping trailing
// characters from the ignore set.
func endsSentence(word string, opts FillOpts) bool {
	r := []rune(word)
	i := len(r) - 1
	for i >= 0 && strings.ContainsRune(opts.EndSentIg, r[i]) {
		i--
	}
	return i >= 0 && strings.ContainsRune(opts.EndSent, r[i])
}

// Fill re-flows text into filled paragraphs. Existing newlines are treated
// as soft breaks; a blank line separates paragraphs.
func Fill(text string, opts FillOpts) string {
	if opts.Width <= 0 {
		return text
	}
	var out strings.Builder
	paras := strings.Split(text, "\n\n")
	for pi, para := range paras {
		if pi > 0 {
			out.WriteString("\n\n")
		}
		words := strings.Fields(para)
		col := 0
		for wi, w := range words {
			ww := visibleWidth(w)
			switch {
			case wi == 0:
				out.WriteString(strings.Repeat(" ", opts.FirstIndent))
				col = opts.FirstIndent
			case col+1+ww > opts.Width:
				out.WriteString("\n")
				out.WriteString(strings.Repeat(" ", opts.SubsIndent))
				col = opts.SubsIndent
			case endsSentence(words[wi-1], opts):
				out.WriteString("  ")
				col += 2
			default:
				out.WriteString(" ")
				col++
			}
			out.WriteString(w)
			col += ww
		}
	}
	return out.String()
}
