// Package modelname provides normalization, tokenization, and ordering
// helpers for semantically fuzzy model names.
package modelname

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultMatchThreshold is the minimum token similarity for a fuzzy match.
const DefaultMatchThreshold = 0.5

var (
	normalizePattern = regexp.MustCompile(`[^a-z0-9\-_]`)
	tokenSplitter    = regexp.MustCompile(`[-_.]+`)

	dateDashPattern    = regexp.MustCompile(`(20[2-9][0-9])-([0-9]{1,2})-([0-9]{1,2})`)
	dateCompactPattern = regexp.MustCompile(`(20[2-9][0-9])([0-9]{2})([0-9]{2})`)
	dateDotPattern     = regexp.MustCompile(`(20[2-9][0-9])\.([0-9]{1,2})\.([0-9]{1,2})`)

	versionTokenPattern = regexp.MustCompile(`^v([0-9]+)$`)
	numericTokenPattern = regexp.MustCompile(`^[0-9]+$`)
)

// Normalize lowercases, trims, and strips every rune outside [a-z0-9-_].
func Normalize(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	return normalizePattern.ReplaceAllString(lowered, "")
}

// Tokens splits a lowercased name on '-', '_', and '.', dropping empties.
func Tokens(name string) []string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	parts := tokenSplitter.Split(lowered, -1)
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// ParseDate extracts an embedded release date as "YYYY-MM-DD".
// Recognized layouts are YYYY-MM-DD, YYYYMMDD, and YYYY.MM.DD with
// year 2020-2099, month 1-12, and day 1-31.
func ParseDate(name string) (string, bool) {
	for _, pattern := range []*regexp.Regexp{dateDashPattern, dateCompactPattern, dateDotPattern} {
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		year, _ := strconv.Atoi(match[1])
		month, _ := strconv.Atoi(match[2])
		day, _ := strconv.Atoi(match[3])
		if year < 2020 || year > 2099 || month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
	}
	return "", false
}

// VersionSegments collects purely numeric tokens and v<digits> tokens
// (stripped of the leading v) in token order.
func VersionSegments(name string) []int {
	var segments []int
	for _, token := range Tokens(name) {
		if match := versionTokenPattern.FindStringSubmatch(token); match != nil {
			if value, errParse := strconv.Atoi(match[1]); errParse == nil {
				segments = append(segments, value)
			}
			continue
		}
		if numericTokenPattern.MatchString(token) {
			if value, errParse := strconv.Atoi(token); errParse == nil {
				segments = append(segments, value)
			}
		}
	}
	return segments
}

// Similarity returns the Jaccard similarity of the two names' token sets.
// Either side tokenizing to nothing yields 0.
func Similarity(a, b string) float64 {
	tokensA := Tokens(a)
	tokensB := Tokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(tokensA))
	for _, token := range tokensA {
		setA[token] = struct{}{}
	}
	setB := make(map[string]struct{}, len(tokensB))
	for _, token := range tokensB {
		setB[token] = struct{}{}
	}

	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// IsModelMatch reports whether two raw model names refer to the same model:
// identical normalized forms, or token similarity at or above threshold.
func IsModelMatch(a, b string, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	normA := Normalize(a)
	normB := Normalize(b)
	if normA != "" && normA == normB {
		return true
	}
	return Similarity(a, b) >= threshold
}

// CompareModels imposes a strict total order over model names, returning a
// negative value when a should rank before ("is preferred over") b.
// Precedence: a parsed date beats no date; a later date beats an earlier
// one; otherwise version segments compare element-wise with higher values
// winning and the longer segment list winning at a shared-prefix tie; the
// residual tie-break is plain ascending lexicographic order on the
// normalized form. The final ascending direction mirrors the observed
// behavior of the source system rather than any stated product rule.
func CompareModels(a, b string) int {
	dateA, hasDateA := ParseDate(a)
	dateB, hasDateB := ParseDate(b)
	if hasDateA != hasDateB {
		if hasDateA {
			return -1
		}
		return 1
	}
	if hasDateA && dateA != dateB {
		// Later date first; ISO dates compare lexicographically.
		if dateA > dateB {
			return -1
		}
		return 1
	}

	segmentsA := VersionSegments(a)
	segmentsB := VersionSegments(b)
	shared := len(segmentsA)
	if len(segmentsB) < shared {
		shared = len(segmentsB)
	}
	for i := 0; i < shared; i++ {
		if segmentsA[i] != segmentsB[i] {
			if segmentsA[i] > segmentsB[i] {
				return -1
			}
			return 1
		}
	}
	if len(segmentsA) != len(segmentsB) {
		if len(segmentsA) > len(segmentsB) {
			return -1
		}
		return 1
	}

	normA := Normalize(a)
	normB := Normalize(b)
	switch {
	case normA < normB:
		return -1
	case normA > normB:
		return 1
	default:
		return 0
	}
}
