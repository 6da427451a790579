package coding

import (
	"fmt"
	"regexp"
	"strings"
)

// Explain returns a short, deterministic, source-only justification for
// why `code` appears in the bundle: the KB rule applied plus the note
// spans that matched. No LLM involvement, per §4.7.
func Explain(kb *KB, code string, noteText string, ext Extraction) string {
	desc, hasDesc := kb.Description(code)

	var spans []string
	if code == cptEBUSTBNAMultiStation || code == cptEBUSTBNASingleStation {
		for _, it := range ext.Items {
			if it.ID == "ebus_tbna" && it.Details != nil {
				if stations, ok := it.Details["stations"]; ok && stations != "" {
					spans = append(spans, "stations: "+stations)
				}
			}
		}
	}
	if len(spans) == 0 {
		spans = matchedSpans(noteText, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(code)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Code %s", code)
	if hasDesc {
		fmt.Fprintf(&b, " (%s)", desc.Description)
	}
	b.WriteString(" was assigned")
	if len(spans) > 0 {
		fmt.Fprintf(&b, " based on the note spans: %s", strings.Join(spans, "; "))
	}
	b.WriteString(".")
	return b.String()
}

func matchedSpans(text string, pattern *regexp.Regexp) []string {
	var out []string
	for _, m := range pattern.FindAllString(text, -1) {
		out = append(out, strings.TrimSpace(m))
	}
	return out
}
