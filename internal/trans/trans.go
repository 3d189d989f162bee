// Package trans implements the translation table that maps source-language
// English strings to translated equivalents for user-visible messages.
package trans

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode"
)

// Table maps English strings to translations.
type Table struct {
	m map[string]string
}

func NewTable() *Table {
	return &Table{m: make(map[string]string)}
}

// Set adds or replaces a mapping. An empty translation removes the entry.
func (t *Table) Set(from, to string) {
	if to == "" {
		delete(t.m, from)
		return
	}
	t.m[from] = to
}

// Lookup finds an exact translation.
func (t *Table) Lookup(s string) (string, bool) {
	out, ok := t.m[s]
	return out, ok
}

// Translate returns the translation when one exists, else s unchanged.
func (t *Table) Translate(s string) string {
	if out, ok := t.m[s]; ok {
		return out
	}
	return s
}

// LookupCased looks up s with case-variant fallback: exact, then all-lower,
// then leading-upper-rest-lower. The result's case is folded the same way as
// the matched key relates to the query.
func (t *Table) LookupCased(s string) (string, bool) {
	if out, ok := t.m[s]; ok {
		return out, true
	}
	lower := strings.ToLower(s)
	if out, ok := t.m[lower]; ok {
		if s == leadingUpper(lower) {
			return leadingUpper(out), true
		}
		return out, true
	}
	lu := leadingUpper(lower)
	if out, ok := t.m[lu]; ok {
		if s == lower {
			return strings.ToLower(out), true
		}
		return out, true
	}
	return "", false
}

func leadingUpper(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.m) }

// Pairs returns all mappings sorted by source string.
func (t *Table) Pairs() [][2]string {
	out := make([][2]string, 0, len(t.m))
	for k, v := range t.m {
		out = append(out, [2]string{k, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Dump writes the table, one `TRANSLATE "from" "to"` line per entry.
func (t *Table) Dump(w io.Writer) {
	for _, p := range t.Pairs() {
		fmt.Fprintf(w, "TRANSLATE %q %q\n", p[0], p[1])
	}
}

// JSON renders the whole table as a single JSON object.
func (t *Table) JSON() ([]byte, error) {
	return json.Marshal(t.m)
}

// LoadFile seeds the table from a translation file: lines of the form
// TRANSLATE "from" "to", with #-comments and blank lines ignored.
func (t *Table) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		var from, to string
		rest, ok := strings.CutPrefix(line, "TRANSLATE")
		if !ok {
			continue
		}
		if n, err := fmt.Sscanf(strings.TrimSpace(rest), "%q %q", &from, &to); n == 2 && err == nil {
			t.Set(from, to)
		}
	}
	return sc.Err()
}
