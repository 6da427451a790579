// Package querynorm normalizes free-text clinical questions before
// retrieval: lowercasing, CPT-preserving punctuation stripping, curated
// abbreviation expansion, and fuzzy typo correction against a medical
// lexicon.
package querynorm

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ipassist/ipassist-core/internal/textnorm"
)

var cptToken = regexp.MustCompile(`\b\d{5}\b`)
var wordToken = regexp.MustCompile(`[A-Za-z][A-Za-z'\-]*|\d{5}`)
var punctStrip = regexp.MustCompile(`[^\w\s\x00()-]`)

// Abbreviation is one curated dictionary entry.
type Abbreviation struct {
	Short string
	Long  string
}

// defaultAbbreviations is the curated dictionary; §4.1 names TEF, EBUS,
// BLVR, SEMS explicitly, the rest are the same domain's standard short
// forms.
var defaultAbbreviations = []Abbreviation{
	{"tef", "tracheoesophageal fistula"},
	{"ebus", "endobronchial ultrasound"},
	{"blvr", "bronchoscopic lung volume reduction"},
	{"sems", "self-expanding metal stent"},
	{"tbna", "transbronchial needle aspiration"},
	{"tblb", "transbronchial lung biopsy"},
	{"pdt", "percutaneous dilational tracheostomy"},
	{"ga", "general anesthesia"},
	{"wll", "whole lung lavage"},
}

// Lexicon provides the corpus-backed mention-count lookup the fuzzy
// corrector consults before accepting a candidate correction.
type Lexicon interface {
	// MentionCount returns how many chunks in the corpus mention term.
	MentionCount(term string) int
	// Terms returns every term in the lexicon.
	Terms() []string
}

// Normalizer applies the query normalization pipeline.
type Normalizer struct {
	abbreviations map[string]string
	lexicon       Lexicon
}

// New constructs a normalizer backed by the default abbreviation dictionary
// and the given corpus lexicon.
func New(lexicon Lexicon) *Normalizer {
	abbrev := make(map[string]string, len(defaultAbbreviations))
	for _, a := range defaultAbbreviations {
		abbrev[a.Short] = a.Long
	}
	return &Normalizer{abbreviations: abbrev, lexicon: lexicon}
}

// Result is the normalizer's output.
type Result struct {
	NormalizedText string
	Expansions     map[string]string // short form -> long form actually applied
}

// Normalize lowercases, strips punctuation except within 5-digit CPT
// tokens (parentheses are kept, since expansions are written inside them),
// expands abbreviations, and fuzzy-corrects unrecognized tokens.
// It is idempotent.
func (n *Normalizer) Normalize(raw string) Result {
	text := textnorm.Normalize(raw)
	text = strings.ToLower(text)

	cptPlaceholders := map[string]string{}
	i := 0
	text = cptToken.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderKey(i)
		cptPlaceholders[key] = m
		i++
		return key
	})

	text = punctStrip.ReplaceAllString(text, " ")
	text = regexp.MustCompile(`\s+`).ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	for key, val := range cptPlaceholders {
		text = strings.ReplaceAll(text, key, val)
	}

	expansions := make(map[string]string)
	tokens := wordToken.FindAllString(text, -1)
	seen := make(map[string]bool)
	for _, tok := range tokens {
		low := strings.ToLower(tok)
		if long, ok := n.abbreviations[low]; ok && !seen[low] {
			expansions[low] = long
			seen[low] = true
		}
	}

	// Apply expansions deterministically (sorted short-form order) so
	// repeated normalization produces byte-identical output.
	shorts := make([]string, 0, len(expansions))
	for s := range expansions {
		shorts = append(shorts, s)
	}
	sort.Strings(shorts)
	for _, short := range shorts {
		long := expansions[short]
		expandedForm := short + " (" + long + ")"
		if strings.Contains(text, expandedForm) {
			continue
		}
		pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(short) + `\b`)
		text = pattern.ReplaceAllString(text, expandedForm)
	}

	if n.lexicon != nil {
		text = n.fuzzyCorrect(text)
	}

	return Result{NormalizedText: text, Expansions: expansions}
}

func placeholderKey(i int) string {
	return "\x00cpt" + itoa(i) + "\x00"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

// fuzzyCorrect replaces tokens with edit distance <= 2 to a lexicon term
// when the corpus has at least 3 mentions of that term; otherwise the
// token is left untouched.
func (n *Normalizer) fuzzyCorrect(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		if len(w) < 4 {
			continue // short tokens produce too many spurious edit-distance-2 matches
		}
		if cptToken.MatchString(w) {
			continue
		}
		best := ""
		bestDist := 3
		for _, term := range n.lexicon.Terms() {
			if term == w {
				best = ""
				break // already correct
			}
			d := levenshtein(w, term)
			if d <= 2 && d < bestDist {
				if n.lexicon.MentionCount(term) >= 3 {
					best = term
					bestDist = d
				}
			}
		}
		if best != "" {
			words[i] = best
		}
	}
	return strings.Join(words, " ")
}

func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			curr[j] = min
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}
