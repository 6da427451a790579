// Package coding implements the deterministic procedural-coding subsystem:
// pattern-based extraction of performed procedures from an operative note,
// a KB-driven rule engine producing CPT/HCPCS/ICD-10-PCS code bundles under
// suppression, bundling, and modifier rules, and a source-only explainer.
//
// The KB's versioned-JSON-resource shape (closed structs, a version field
// carried through every lookup) follows the same pattern as the pack's
// versioned clinical rule-KB providers.
package coding

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// CPTDescription is one KB entry describing a CPT code.
type CPTDescription struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	AddOn       bool   `json:"add_on"`
}

// NCCIBundle records that CodeA bundles into CodeB: CodeA must be dropped
// whenever CodeB is also emitted.
type NCCIBundle struct {
	CodeA string `json:"code_a"`
	CodeB string `json:"code_b"`
}

// KBFile is the on-disk shape of one coding knowledge-base file.
type KBFile struct {
	Version            string           `json:"version"`
	CPTDescriptions     []CPTDescription `json:"cpt_descriptions"`
	NCCIBundles         []NCCIBundle     `json:"ncci_bundles"`
	BilateralEligible   []string         `json:"bilateral_eligible"`
	AddonFamilies       map[string][]string `json:"addon_families"` // primary CPT -> eligible add-on CPTs
	ICD10PCSCrosswalk   map[string][]string `json:"icd10_pcs_crosswalk"` // PerformedItem ID -> ICD-10-PCS codes
}

// KB is the merged, queryable knowledge base used by the rule engine. Per
// the resolved "two coexisting KBs" open question, Load takes an
// ordered list of file paths and later files override earlier ones
// key-by-key; the merged version is the concatenation of each file's
// version tag.
type KB struct {
	Version           string
	// SourcePaths records the ordered file list Load merged this KB from,
	// for operator-facing traceability. Empty when built via
	// LoadFromFiles (no filesystem source).
	SourcePaths       []string
	cptDescriptions   map[string]CPTDescription
	ncciBundles       map[string]string // code_a -> code_b
	bilateralEligible map[string]bool
	addonFamilies     map[string][]string
	icd10PCS          map[string][]string
}

// Load reads and merges an ordered list of KB files. Files later in the
// list override earlier ones on a per-key basis.
func Load(paths []string) (*KB, error) {
	kb := &KB{
		cptDescriptions:   make(map[string]CPTDescription),
		ncciBundles:       make(map[string]string),
		bilateralEligible: make(map[string]bool),
		addonFamilies:     make(map[string][]string),
		icd10PCS:          make(map[string][]string),
	}
	var versions []string
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("coding: read KB file %s: %w", path, err)
		}
		var file KBFile
		if err := json.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("coding: parse KB file %s: %w", path, err)
		}
		kb.merge(file)
		if file.Version != "" {
			versions = append(versions, file.Version)
		}
	}
	kb.Version = strings.Join(versions, "+")
	kb.SourcePaths = paths
	return kb, nil
}

// LoadFromFiles builds a KB from already-parsed file contents, merging them
// in the same order Load does, without touching the filesystem; it is used
// by tests and leaves SourcePaths empty.
func LoadFromFiles(files []KBFile) *KB {
	kb := &KB{
		cptDescriptions:   make(map[string]CPTDescription),
		ncciBundles:       make(map[string]string),
		bilateralEligible: make(map[string]bool),
		addonFamilies:     make(map[string][]string),
		icd10PCS:          make(map[string][]string),
	}
	var versions []string
	for _, file := range files {
		kb.merge(file)
		if file.Version != "" {
			versions = append(versions, file.Version)
		}
	}
	kb.Version = strings.Join(versions, "+")
	return kb
}

func (kb *KB) merge(file KBFile) {
	for _, d := range file.CPTDescriptions {
		kb.cptDescriptions[d.Code] = d
	}
	for _, b := range file.NCCIBundles {
		kb.ncciBundles[b.CodeA] = b.CodeB
	}
	for _, code := range file.BilateralEligible {
		kb.bilateralEligible[code] = true
	}
	for primary, addons := range file.AddonFamilies {
		kb.addonFamilies[primary] = addons
	}
	for item, codes := range file.ICD10PCSCrosswalk {
		kb.icd10PCS[item] = codes
	}
}

// BundlesInto returns the code that `code` bundles into, and whether such a
// rule exists.
func (kb *KB) BundlesInto(code string) (string, bool) {
	into, ok := kb.ncciBundles[code]
	return into, ok
}

// IsBilateralEligible reports whether a code may carry the -50 modifier.
func (kb *KB) IsBilateralEligible(code string) bool {
	return kb.bilateralEligible[code]
}

// ICD10PCSFor returns the crosswalked ICD-10-PCS codes for a PerformedItem
// ID, and whether the KB has an entry.
func (kb *KB) ICD10PCSFor(itemID string) ([]string, bool) {
	codes, ok := kb.icd10PCS[itemID]
	return codes, ok
}

// Description returns the KB's CPT description entry, if present.
func (kb *KB) Description(code string) (CPTDescription, bool) {
	d, ok := kb.cptDescriptions[code]
	return d, ok
}

// AddOnsFor returns the eligible add-on CPT codes configured for a primary
// CPT code, and whether the KB has an entry for it.
func (kb *KB) AddOnsFor(primaryCPT string) ([]string, bool) {
	addons, ok := kb.addonFamilies[primaryCPT]
	return addons, ok
}
