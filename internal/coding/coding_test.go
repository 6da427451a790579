package coding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKB() *KB {
	return LoadFromFiles([]KBFile{
		{
			Version: "v1",
			CPTDescriptions: []CPTDescription{
				{Code: "31653", Description: "EBUS-TBNA, 3 or more stations"},
				{Code: "31622", Description: "Diagnostic bronchoscopy"},
			},
			NCCIBundles: []NCCIBundle{
				{CodeA: "31630", CodeB: "31636"},
			},
			BilateralEligible: []string{"31628"},
			ICD10PCSCrosswalk: map[string][]string{
				"ebus_tbna": {"0BBC8ZX"},
			},
		},
	})
}

func TestExtractStentDetection(t *testing.T) {
	ext := Extract("A Dumon tracheal stent was placed for malignant stenosis.")
	require.NotEmpty(t, ext.Items)
	assert.Equal(t, "tracheal_stent_insertion", string(ext.Items[0].ID))
}

func TestExtractNegatedStentIgnored(t *testing.T) {
	ext := Extract("Stent placement was considered but ultimately not placed given patient preference.")
	for _, it := range ext.Items {
		assert.NotEqual(t, "tracheal_stent_insertion", string(it.ID))
		assert.NotEqual(t, "bronchial_stent_insertion", string(it.ID))
	}
}

func TestExtractOperativeNoteScenario(t *testing.T) {
	note := "Convex EBUS-TBNA with sampling of stations 4R, 7, and 11L; 22G needle x3 passes each; ROSE adequate. Patient under general anesthesia via ETT."
	ext := Extract(note)
	require.NotEmpty(t, ext.Items)
	found := false
	for _, it := range ext.Items {
		if it.ID == "ebus_tbna" {
			found = true
			assert.GreaterOrEqual(t, it.Count, 3)
		}
	}
	assert.True(t, found)
	assert.True(t, ext.GAIndicated)

	kb := testKB()
	engine := NewEngine(kb)
	bundle := engine.Apply(ext, note)

	assert.Contains(t, bundle.PrimaryCPTs, cptEBUSTBNAMultiStation)
	assert.Equal(t, "general_anesthesia", bundle.SedationFamily)
	assert.Contains(t, bundle.Warnings, "no moderate sedation under GA")
	assert.NotEmpty(t, bundle.KBVersion)

	explanation := Explain(kb, cptEBUSTBNAMultiStation, note, ext)
	assert.Contains(t, explanation, "4R")
}

func TestSurgicalCodeSuppresses31622(t *testing.T) {
	note := "Tracheal stent (Dumon) placed for malignant central airway obstruction."
	ext := Extract(note)
	kb := testKB()
	engine := NewEngine(kb)
	bundle := engine.Apply(ext, note)

	assert.NotContains(t, bundle.PrimaryCPTs, cptDiagnosticBronchoscopy)
	foundSuppressed := false
	for _, s := range bundle.SuppressedWithReason {
		if s.Code == cptDiagnosticBronchoscopy {
			foundSuppressed = true
		}
	}
	assert.True(t, foundSuppressed)
}

func TestDilationSuppressedWhenStentPresent(t *testing.T) {
	note := "Balloon dilation was performed solely to facilitate tracheal stent placement."
	ext := Extract(note)
	for _, it := range ext.Items {
		assert.NotEqual(t, "airway_dilation_only", string(it.ID))
	}
}

func TestLowConfidenceOnLongUnmatchedNote(t *testing.T) {
	note := "The patient tolerated the procedure well and was monitored in recovery for an extended period with stable vitals throughout and no immediate complications were noted during observation before discharge home later that same afternoon. Family members were updated at the bedside, questions were answered in detail, and written instructions regarding diet, activity, medications, and follow-up appointments were reviewed with the patient prior to departure."
	ext := Extract(note)
	assert.True(t, ext.LowConfidence)

	kb := testKB()
	engine := NewEngine(kb)
	bundle := engine.Apply(ext, note)
	assert.Contains(t, bundle.Warnings[0], "coding_low_confidence")
}
