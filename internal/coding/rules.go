package coding

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/ipassist/ipassist-core/internal/domain"
)

// itemPrimaryCPT maps a PerformedItem kind to its primary CPT code. These
// are the procedural core's working code set for the items §3 enumerates;
// a full crosswalk lives in the KB for descriptions and bundling, not for
// this base mapping, since the mapping itself is part of the coding logic
// rather than tunable reference data.
var itemPrimaryCPT = map[domain.PerformedItemKind]string{
	domain.ItemTumorExcisionBronchoscopic:    "31640",
	domain.ItemTumorDestructionBronchoscopic: "31641",
	domain.ItemTrachealStentInsertion:        "31631",
	domain.ItemBronchialStentInsertion:       "31636",
	domain.ItemAirwayDilationOnly:            "31630",
	domain.ItemWholeLungLavage:               "32997",
	domain.ItemEBUSWithoutTBNA:               "31620",
	domain.ItemTBLBForcepsOrCryo:             "31628",
}

const (
	cptDiagnosticBronchoscopy = "31622"
	cptEBUSTBNASingleStation  = "31652"
	cptEBUSTBNAMultiStation   = "31653"
	cptBronchialStentAddOn    = "31637"
	cptTBLBAddOnLobe          = "31632"

	sedationFamilyModerate = "moderate_sedation"
	sedationFamilyNone     = "none"
)

var stentSizePattern = regexp.MustCompile(`(?i)\b\d{1,2}(?:\.\d)?\s*(?:x\s*\d{1,3}\s*)?mm\b`)
var elastographyPattern = regexp.MustCompile(`(?i)elastograph`)
var lateralityPattern = regexp.MustCompile(`(?i)\b(left|right|bilateral)\b`)

// Engine applies KB rules to a raw Extraction and produces a CodeBundle.
type Engine struct {
	kb *KB
}

// NewEngine constructs a rule engine bound to a loaded KB.
func NewEngine(kb *KB) *Engine {
	return &Engine{kb: kb}
}

// addOnFor returns the KB-configured add-on CPT for a primary code's
// "each additional" scenario, falling back to the built-in default when
// the loaded KB defines no addon_families entry for that primary.
func (e *Engine) addOnFor(primaryCPT, fallback string) string {
	if addons, ok := e.kb.AddOnsFor(primaryCPT); ok && len(addons) > 0 {
		return addons[0]
	}
	return fallback
}

// Apply runs the rule engine over an extraction and the original note text
// (needed for a handful of documentation-gap checks that read free text
// rather than structured PerformedItem fields).
func (e *Engine) Apply(ext Extraction, noteText string) domain.CodeBundle {
	bundle := domain.CodeBundle{KBVersion: e.kb.Version}

	if ext.LowConfidence {
		bundle.Warnings = append(bundle.Warnings, "coding_low_confidence: manual coding required")
		return bundle
	}

	primarySet := make(map[string]bool)
	addonSet := make(map[string]bool)
	surgicalEmitted := false

	lobeSeenForAddOn := false
	ebusStationCount := 0

	for _, item := range ext.Items {
		switch item.ID {
		case domain.ItemEBUSTBNA:
			if item.Count >= 3 {
				primarySet[cptEBUSTBNAMultiStation] = true
			} else {
				primarySet[cptEBUSTBNASingleStation] = true
			}
			ebusStationCount = item.Count
			surgicalEmitted = true
		case domain.ItemTBLBForcepsOrCryo:
			if !lobeSeenForAddOn {
				primarySet[itemPrimaryCPT[item.ID]] = true
				lobeSeenForAddOn = true
			} else {
				addonSet[e.addOnFor(itemPrimaryCPT[item.ID], cptTBLBAddOnLobe)] = true
			}
			surgicalEmitted = true
		case domain.ItemBronchialStentInsertion:
			primary := itemPrimaryCPT[item.ID]
			primarySet[primary] = true
			surgicalEmitted = true
			if item.Count > 1 {
				addonSet[e.addOnFor(primary, cptBronchialStentAddOn)] = true
			}
		default:
			if cpt, ok := itemPrimaryCPT[item.ID]; ok {
				primarySet[cpt] = true
				surgicalEmitted = true
			}
		}

		if codes, ok := e.kb.ICD10PCSFor(string(item.ID)); ok {
			bundle.ICD10PCS = appendUnique(bundle.ICD10PCS, codes...)
		}
	}

	// Hard suppression: 31622 whenever any surgical bronchoscopy code is
	// present, per §4.7.
	if surgicalEmitted {
		bundle.SuppressedWithReason = append(bundle.SuppressedWithReason, domain.SuppressedCode{
			Code: cptDiagnosticBronchoscopy, Reason: "surgical bronchoscopy code present",
		})
	}

	// NCCI bundling from the KB.
	for code := range primarySet {
		if into, ok := e.kb.BundlesInto(code); ok && primarySet[into] {
			delete(primarySet, code)
			bundle.SuppressedWithReason = append(bundle.SuppressedWithReason, domain.SuppressedCode{
				Code: code, Reason: fmt.Sprintf("bundles into %s per NCCI edit", into),
			})
		}
	}

	bundle.PrimaryCPTs = sortedKeys(primarySet)
	bundle.AddOnCPTs = sortedKeys(addonSet)

	// Bilateral modifier.
	if lateralityPattern.MatchString(noteText) {
		bilateralMentioned := regexp.MustCompile(`(?i)\bbilateral\b`).MatchString(noteText)
		if bilateralMentioned {
			eligible := false
			for _, code := range bundle.PrimaryCPTs {
				if e.kb.IsBilateralEligible(code) {
					eligible = true
					break
				}
			}
			if eligible {
				bundle.Modifiers = append(bundle.Modifiers, "-50")
			} else {
				bundle.Warnings = append(bundle.Warnings, "bilateral evidence without bilateral-eligible code")
			}
		}
	}

	// Sedation family.
	if ext.GAIndicated {
		bundle.SedationFamily = "general_anesthesia"
		bundle.Warnings = append(bundle.Warnings, "no moderate sedation under GA")
	} else if ext.SedationMinutes > 0 {
		bundle.SedationFamily = sedationFamilyModerate
	} else {
		bundle.SedationFamily = sedationFamilyNone
	}

	// Documentation-gap warnings.
	if hasStent(ext) && !stentSizePattern.MatchString(noteText) {
		bundle.Warnings = append(bundle.Warnings, "documentation gap: stent size not recorded")
	}
	if ebusStationCount > 0 && !elastographyPattern.MatchString(noteText) {
		bundle.Warnings = append(bundle.Warnings, "documentation gap: EBUS elastography for staging not recorded")
	}
	if ext.SedationMinutes == 0 && !ext.GAIndicated && len(ext.Items) > 0 {
		bundle.Warnings = append(bundle.Warnings, "documentation gap: sedation start/end times not recorded")
	}

	sort.Strings(bundle.Warnings)
	return bundle
}

func hasStent(ext Extraction) bool {
	for _, it := range ext.Items {
		if it.ID == domain.ItemTrachealStentInsertion || it.ID == domain.ItemBronchialStentInsertion {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func appendUnique(existing []string, more ...string) []string {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e] = true
	}
	for _, m := range more {
		if !seen[m] {
			existing = append(existing, m)
			seen[m] = true
		}
	}
	return existing
}
