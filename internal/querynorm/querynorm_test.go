package querynorm

import "testing"

type fakeLexicon struct {
	counts map[string]int
}

func (f fakeLexicon) MentionCount(term string) int { return f.counts[term] }
func (f fakeLexicon) Terms() []string {
	out := make([]string, 0, len(f.counts))
	for t := range f.counts {
		out = append(out, t)
	}
	return out
}

func TestNormalizeExpandsAbbreviation(t *testing.T) {
	n := New(nil)
	got := n.Normalize("patient has TEF and needs EBUS").NormalizedText
	if !contains(got, "tef (tracheoesophageal fistula)") {
		t.Fatalf("expected TEF expansion, got %q", got)
	}
	if !contains(got, "ebus (endobronchial ultrasound)") {
		t.Fatalf("expected EBUS expansion, got %q", got)
	}
}

func TestNormalizePreservesCPT(t *testing.T) {
	n := New(nil)
	got := n.Normalize("what is CPT 31622?").NormalizedText
	if !contains(got, "31622") {
		t.Fatalf("expected CPT token preserved, got %q", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	lex := fakeLexicon{counts: map[string]int{"bronchoscopy": 5}}
	n := New(lex)
	cases := []string{
		"patient has TEF and needs EBUS",
		"bronchoscpy with stent placement",
		"CPT 31622 bundling rules",
	}
	for _, c := range cases {
		once := n.Normalize(c).NormalizedText
		twice := n.Normalize(once).NormalizedText
		if once != twice {
			t.Errorf("not idempotent for %q: once=%q twice=%q", c, once, twice)
		}
	}
}

func TestFuzzyCorrectRequiresMinMentions(t *testing.T) {
	lex := fakeLexicon{counts: map[string]int{"bronchoscopy": 2}}
	n := New(lex)
	got := n.Normalize("bronchoscpy today").NormalizedText
	if contains(got, "bronchoscopy") {
		t.Fatalf("expected no correction below mention threshold, got %q", got)
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && indexOf(s, sub) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
