// Package textsim provides the content normalisation and similarity scoring
// used to spot near-duplicate chat messages.
//
// Messages are normalised (Unicode NFKC, case folding, punctuation dropped,
// whitespace collapsed) before they are fingerprinted with xxhash and split
// into a token set. Two messages are near-duplicates when their fingerprints
// match or the Jaccard overlap of their token sets reaches a threshold.
// Messages with no words (emoji, punctuation) are fingerprinted on their
// folded raw text instead, so only exact repeats of them match.
package textsim

import (
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Sample is a normalised message ready for comparison. A blank sample never
// matches anything.
type Sample struct {
	Hash   uint64
	Tokens map[string]struct{}
	Blank  bool
}

// Normalize folds s into a canonical form: NFKC, case-folded, words joined by
// single spaces, punctuation and symbols removed.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(wordRE.FindAllString(s, -1), " ")
}

// key is the string a message is fingerprinted on: its normalised form, or
// the NFKC case-folded text when no words survive normalisation.
func key(s string) (n, k string) {
	n = Normalize(s)
	if n != "" {
		return n, n
	}
	return n, strings.Join(strings.Fields(cases.Fold().String(norm.NFKC.String(s))), " ")
}

// Fingerprint hashes the comparison key of s.
func Fingerprint(s string) uint64 {
	_, k := key(s)
	return xxhash.Sum64String(k)
}

// Tokens returns the set of normalised words in s.
func Tokens(s string) map[string]struct{} {
	words := strings.Fields(Normalize(s))
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// NewSample normalises s once and returns both comparison forms.
func NewSample(s string) Sample {
	n, k := key(s)
	out := Sample{Hash: xxhash.Sum64String(k), Blank: k == ""}
	if words := strings.Fields(n); len(words) > 0 {
		out.Tokens = make(map[string]struct{}, len(words))
		for _, w := range words {
			out.Tokens[w] = struct{}{}
		}
	}
	return out
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when either set is empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Similar reports whether a and b are near-duplicates at threshold.
// Identical fingerprints always match; blank samples never do.
func Similar(a, b Sample, threshold float64) bool {
	if a.Blank || b.Blank {
		return false
	}
	if a.Hash == b.Hash {
		return true
	}
	return Jaccard(a.Tokens, b.Tokens) >= threshold
}
