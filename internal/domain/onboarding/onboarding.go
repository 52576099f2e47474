// Package onboarding suggests intern ids for new workers.
package onboarding

import (
	"math/rand"
	"strings"
)

const (
	// IDLength is the length of every suggested id.
	IDLength = 6
	// Suggestions is the number of ids offered.
	Suggestions = 5

	letters = "abcdefghijklmnopqrstuvwxyz"
)

// Suggest returns Suggestions distinct ids that are not in existing. Ids
// derived from the name come first; random letters fill the rest.
func Suggest(first, last string, existing map[string]struct{}, rng *rand.Rand) []string {
	patterns := []string{
		prefix(first, 3) + prefix(last, 2),
		prefix(first, 2) + prefix(last, 3),
		prefix(first, 1) + prefix(last, 5),
		prefix(last, 3) + prefix(first, 2),
		prefix(last, 2) + prefix(first, 3),
	}

	out := make([]string, 0, Suggestions)
	taken := func(id string) bool {
		if _, ok := existing[id]; ok {
			return true
		}
		for _, c := range out {
			if c == id {
				return true
			}
		}
		return false
	}

	for _, p := range patterns {
		id := normalize(p)
		if !taken(id) {
			out = append(out, id)
		}
	}
	for len(out) < Suggestions {
		b := make([]byte, IDLength)
		for i := range b {
			b[i] = letters[rng.Intn(len(letters))]
		}
		if id := string(b); !taken(id) {
			out = append(out, id)
		}
	}
	return out
}

// Valid reports whether id has the shape of a suggested id.
func Valid(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for _, r := range id {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// normalize keeps ASCII letters, lowercases and pads or cuts to IDLength.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	id := strings.ToLower(b.String())
	if len(id) > IDLength {
		id = id[:IDLength]
	}
	return id + strings.Repeat("x", IDLength-len(id))
}
