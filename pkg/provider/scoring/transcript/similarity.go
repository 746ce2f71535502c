package transcript

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	editWeight     = 0.6
	jwWeight       = 0.4
	phoneticWeight = 0.25
)

// Similarity scores how closely spoken matches target, in [0, 1].
//
// Both strings are case-folded and stripped of punctuation first. The score
// blends three measures:
//
//  1. Character edit similarity on the space-stripped text, which tolerates
//     the spacing differences speech recognisers introduce.
//  2. Jaro-Winkler similarity on the token sequence.
//  3. For scripts with Latin words, the share of script words whose Double
//     Metaphone codes are matched by some spoken word.
func Similarity(spoken, target string) float64 {
	st, tt := tokens(spoken), tokens(target)
	if len(st) == 0 || len(tt) == 0 {
		return 0
	}

	sj, tj := strings.Join(st, ""), strings.Join(tt, "")
	longest := max(utf8.RuneCountInString(sj), utf8.RuneCountInString(tj))
	edit := 1 - float64(matchr.Levenshtein(sj, tj))/float64(longest)

	jw := matchr.JaroWinkler(strings.Join(st, " "), strings.Join(tt, " "), false)

	s := editWeight*edit + jwWeight*jw
	if cov, ok := phoneticCoverage(st, tt); ok {
		s = (1-phoneticWeight)*s + phoneticWeight*cov
	}
	return math.Max(0, math.Min(1, s))
}

// tokens lowercases s and splits it into words, treating every rune that is
// neither a letter nor a digit as a separator.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// phoneticCoverage returns the fraction of target tokens with a phonetic code
// that share a code with any spoken token. ok is false when no target token
// produces a code, e.g. for Hangul-only scripts.
func phoneticCoverage(spoken, target []string) (coverage float64, ok bool) {
	spokenCodes := codesForTokens(spoken)
	var coded, hit int
	for _, t := range target {
		if !isLatin(t) {
			continue
		}
		codes := codesForTokens([]string{t})
		if len(codes) == 0 {
			continue
		}
		coded++
		if codesOverlap(codes, spokenCodes) {
			hit++
		}
	}
	if coded == 0 {
		return 0, false
	}
	return float64(hit) / float64(coded), true
}

// codesForTokens returns the union of the Double Metaphone codes of the Latin
// tokens given. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		if !isLatin(t) {
			continue
		}
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// isLatin reports whether every letter in s is from the Latin script.
func isLatin(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return false
		}
	}
	return true
}
