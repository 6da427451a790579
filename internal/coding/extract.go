package coding

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ipassist/ipassist-core/internal/domain"
	"github.com/ipassist/ipassist-core/internal/textnorm"
)

var (
	stentBrands = []string{"bonastent", "aero", "ultraflex", "dumon", "polyflex", "hood", "nitis", "taewoong"}

	stentPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(stentBrands, "|") + `)\b|\b(tracheal|bronchial)\s+stent\b|\by[- ]stent\b`)

	dilationPattern = regexp.MustCompile(`(?i)\b(balloon\s+)?dilation\b`)

	excisionPattern    = regexp.MustCompile(`(?i)\b(snare|polypectomy|transected|specimen sent)\b`)
	destructionPattern = regexp.MustCompile(`(?i)\b(apc|argon plasma|laser|cryo destruction)\b`)

	wllPattern = regexp.MustCompile(`(?i)\bwhole lung lavage\b|\bwll\b|\bdouble[- ]lumen lavage\b`)

	radialEBUSPattern = regexp.MustCompile(`(?i)\bradial ebus\b`)
	convexEBUSPattern = regexp.MustCompile(`(?i)\bconvex ebus\b`)
	tbnaPattern       = regexp.MustCompile(`(?i)\btbna\b|\btransbronchial needle aspiration\b`)
	stationPattern    = regexp.MustCompile(`(?i)\bstations?\s+([0-9]{1,2}[lr]?(?:\s*,\s*(?:and\s+)?[0-9]{1,2}[lr]?)*)\b`)
	stationToken      = regexp.MustCompile(`(?i)[0-9]{1,2}[lr]?`)

	tblbPattern = regexp.MustCompile(`(?i)\btblb\b|\btransbronchial (?:lung )?biops(?:y|ies)\b|\bforceps\b|\bcryo(?:biopsy|probe)\b`)
	lobePattern = regexp.MustCompile(`(?i)\b(right upper|right middle|right lower|left upper|left lower|rul|rml|rll|lul|lll)\s+lobe\b`)

	gaPattern = regexp.MustCompile(`(?i)\bgeneral anesthesia\b|\bga\b|\blma\b|\bett\b|\bmuscle relaxants?\b`)

	timePattern = regexp.MustCompile(`(?i)(?:start(?:ed)? time|sedation start)[:\s]*([0-2]?\d:[0-5]\d)[^0-9]+(?:end(?:ed)? time|sedation end)[:\s]*([0-2]?\d:[0-5]\d)`)

	negationWindow = []string{"no", "declined", "considered", "deferred", "reluctant", "not placed"}
)

// Extraction is the raw output of the pattern pass over one operative note,
// before the rule engine applies KB logic.
type Extraction struct {
	Items           []domain.PerformedItem
	GAIndicated     bool
	SedationMinutes int
	LowConfidence   bool
}

// Extract runs the ordered battery of regexes over a lightly normalized
// note and emits zero or more PerformedItems plus sedation context.
func Extract(note string) Extraction {
	normalized := textnorm.Normalize(note)
	lower := strings.ToLower(normalized)
	tokens := strings.Fields(lower)

	var items []domain.PerformedItem
	fired := false

	if loc := stentPattern.FindStringIndex(lower); loc != nil && !negatedAt(tokens, lower, loc[0]) {
		fired = true
		site := domain.SiteBronchus
		if strings.Contains(lower, "tracheal") || regexp.MustCompile(`(?i)\by[- ]stent\b`).MatchString(lower) {
			site = domain.SiteTrachea
		}
		kind := domain.ItemBronchialStentInsertion
		if site == domain.SiteTrachea {
			kind = domain.ItemTrachealStentInsertion
		}
		items = append(items, domain.PerformedItem{ID: kind, Site: site, Count: 1})
	}

	stentDetected := hasKind(items, domain.ItemTrachealStentInsertion) || hasKind(items, domain.ItemBronchialStentInsertion)
	if dilationPattern.MatchString(lower) && !stentDetected {
		fired = true
		items = append(items, domain.PerformedItem{ID: domain.ItemAirwayDilationOnly, Site: domain.SiteUnknown, Count: 1})
	}

	excisionHit := excisionPattern.MatchString(lower)
	destructionHit := destructionPattern.MatchString(lower)
	if excisionHit {
		fired = true
		items = append(items, domain.PerformedItem{ID: domain.ItemTumorExcisionBronchoscopic, Site: domain.SiteBronchus, Count: 1, SpecimensCollected: strings.Contains(lower, "specimen sent")})
	} else if destructionHit {
		fired = true
		items = append(items, domain.PerformedItem{ID: domain.ItemTumorDestructionBronchoscopic, Site: domain.SiteBronchus, Count: 1})
	}

	if wllPattern.MatchString(lower) {
		fired = true
		items = append(items, domain.PerformedItem{ID: domain.ItemWholeLungLavage, Site: domain.SiteUnknown, Count: 1})
	}

	if convexEBUSPattern.MatchString(lower) && tbnaPattern.MatchString(lower) {
		fired = true
		stations := uniqueStations(lower)
		details := map[string]string{"stations": strings.Join(stations, ",")}
		items = append(items, domain.PerformedItem{ID: domain.ItemEBUSTBNA, Site: domain.SiteBronchus, Count: len(stations), Details: details, SpecimensCollected: true})
	} else if radialEBUSPattern.MatchString(lower) || convexEBUSPattern.MatchString(lower) {
		fired = true
		items = append(items, domain.PerformedItem{ID: domain.ItemEBUSWithoutTBNA, Site: domain.SiteBronchus, Count: 1})
	}

	if tblbPattern.MatchString(lower) {
		fired = true
		lobes := uniqueLobes(lower)
		if len(lobes) == 0 {
			items = append(items, domain.PerformedItem{ID: domain.ItemTBLBForcepsOrCryo, Site: domain.SiteLobe, Count: 1})
		}
		for i, lobe := range lobes {
			details := map[string]string{"lobe": lobe}
			count := 1
			if i > 0 {
				count = 0 // additional lobes are counted via Details/ordering, not the primary Count
			}
			items = append(items, domain.PerformedItem{ID: domain.ItemTBLBForcepsOrCryo, Site: domain.SiteLobe, Count: count, Details: details})
		}
	}

	var ext Extraction
	ext.Items = items
	ext.GAIndicated = gaPattern.MatchString(lower)
	if !ext.GAIndicated {
		if m := timePattern.FindStringSubmatch(lower); m != nil {
			ext.SedationMinutes = minutesBetween(m[1], m[2])
		}
	}

	tokenCount := len(tokens)
	ext.LowConfidence = !fired && tokenCount > 50

	return ext
}

func hasKind(items []domain.PerformedItem, kind domain.PerformedItemKind) bool {
	for _, it := range items {
		if it.ID == kind {
			return true
		}
	}
	return false
}

// negatedAt reports whether the match starting at byteOffset falls within
// an 8-token window containing a negation cue.
func negatedAt(tokens []string, lower string, byteOffset int) bool {
	// locate the token index nearest byteOffset by counting tokens up to it
	prefix := lower[:byteOffset]
	idx := len(strings.Fields(prefix))
	start := idx - 8
	if start < 0 {
		start = 0
	}
	end := idx + 8
	if end > len(tokens) {
		end = len(tokens)
	}
	words := make([]string, 0, end-start)
	for _, tok := range tokens[start:end] {
		words = append(words, strings.Trim(tok, ".,;:!?()"))
	}
	window := " " + strings.Join(words, " ") + " "
	for _, neg := range negationWindow {
		if strings.Contains(window, " "+neg+" ") {
			return true
		}
	}
	return false
}

func uniqueStations(lower string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range stationPattern.FindAllStringSubmatch(lower, -1) {
		for _, tok := range stationToken.FindAllString(m[1], -1) {
			tok = strings.ToUpper(tok)
			if !seen[tok] {
				seen[tok] = true
				out = append(out, tok)
			}
		}
	}
	return out
}

func uniqueLobes(lower string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range lobePattern.FindAllStringSubmatch(lower, -1) {
		lobe := canonicalLobe(m[1])
		if !seen[lobe] {
			seen[lobe] = true
			out = append(out, lobe)
		}
	}
	return out
}

func canonicalLobe(s string) string {
	switch strings.ToLower(s) {
	case "right upper", "rul":
		return "RUL"
	case "right middle", "rml":
		return "RML"
	case "right lower", "rll":
		return "RLL"
	case "left upper", "lul":
		return "LUL"
	case "left lower", "lll":
		return "LLL"
	default:
		return strings.ToUpper(s)
	}
}

func minutesBetween(start, end string) int {
	sm, ok1 := toMinutes(start)
	em, ok2 := toMinutes(end)
	if !ok1 || !ok2 {
		return 0
	}
	diff := em - sm
	if diff < 0 {
		diff += 24 * 60
	}
	return diff
}

func toMinutes(hhmm string) (int, bool) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return h*60 + m, true
}
