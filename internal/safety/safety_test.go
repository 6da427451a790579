package safety

import (
	"testing"

	"github.com/ipassist/ipassist-core/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestPreDetectsEmergency(t *testing.T) {
	c := New(DefaultConfig())
	res := c.Pre("management of massive hemoptysis >200 ml")
	assert.True(t, res.IsEmergency)
}

func TestPreDetectsPediatric(t *testing.T) {
	c := New(DefaultConfig())
	res := c.Pre("dosing for pediatric patient with stridor")
	assert.True(t, res.IsPediatric)
}

func TestPreDetectsDoseNumbers(t *testing.T) {
	c := New(DefaultConfig())
	res := c.Pre("administer 5 mg lidocaine before the procedure")
	assert.True(t, res.HasDoseNumbers)
}

func TestPostFlagsUnsupportedDose(t *testing.T) {
	c := New(DefaultConfig())
	grounding := []domain.Chunk{{Text: "typical dose is 2 mg per kg"}}
	res := c.Post("administer 50 mg of the agent", grounding, domain.ClassClinical)
	assert.True(t, res.ReviewRequired)
}

func TestPostAcceptsSupportedDose(t *testing.T) {
	c := New(DefaultConfig())
	grounding := []domain.Chunk{
		{Text: "recommended dose is 10 mg for adults"},
		{Text: "studies confirm 10 mg is standard"},
	}
	res := c.Post("administer 10 mg", grounding, domain.ClassClinical)
	assert.False(t, res.ReviewRequired)
}

func TestPostFlagsMissingContraindicationCoverage(t *testing.T) {
	c := New(DefaultConfig())
	grounding := []domain.Chunk{{Text: "SEMS use in benign disease", Tags: []domain.Tag{domain.TagHasContraindication}}}
	res := c.Post("SEMS can be used for benign stenosis.", grounding, domain.ClassSafety)
	assert.True(t, res.ReviewRequired)
	assert.Contains(t, res.Warnings, "missing_contraindication_coverage")
}
