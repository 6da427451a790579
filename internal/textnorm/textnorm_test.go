package textnorm

import "testing"

func TestNormalizeIdempotent(t *testing.T) {
	cases := []string{
		"The  paﬁent   had  a   stent\n\n\n\nplaced.",
		"EBUS (endobronchial ultrasound) (endobronchial ultrasound) was used.",
		"“Quoted” text — with an em dash.",
		"",
	}
	for _, c := range cases {
		once := Normalize(c)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: once=%q twice=%q", c, once, twice)
		}
	}
}

func TestNormalizeLigatures(t *testing.T) {
	got := Normalize("paﬁent ﬁle")
	if got != "pafient file" {
		t.Errorf("ligature cleanup failed: got %q", got)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	got := Normalize("a   b\t\tc\n\n\n\nd")
	if got != "a b c\n\nd" {
		t.Errorf("whitespace collapse failed: got %q", got)
	}
}

func TestNormalizeDoubleExpansion(t *testing.T) {
	got := Normalize("TEF (tracheoesophageal fistula) (tracheoesophageal fistula)")
	if got != "TEF (tracheoesophageal fistula)" {
		t.Errorf("double expansion not collapsed: got %q", got)
	}
}
