package orchestrator

import "github.com/ipassist/ipassist-core/internal/domain"

// setFilters derives the retrieval filter set and top_k/reranker overrides
// for a classification, following the per-classification rules: emergency
// narrows hard for latency, coding steers toward the billing domain, safety
// demands contraindication-or-dose coverage, clinical/procedure take the
// request's own defaults.
func setFilters(class domain.Classification, requested domain.Filters, requestedTopK int, requestedUseReranker bool) (domain.Filters, int, bool) {
	f := requested
	topK := requestedTopK
	if topK < 1 {
		topK = 5
	}
	useReranker := requestedUseReranker

	switch class {
	case domain.ClassEmergency:
		f.AuthorityTiers = []domain.AuthorityTier{domain.TierA1, domain.TierA2}
		if topK > 5 {
			topK = 5
		}
		useReranker = false
	case domain.ClassCoding:
		if len(f.SectionKinds) == 0 {
			f.SectionKinds = []domain.SectionKind{domain.SectionTableRow, domain.SectionCoding}
		}
		if len(f.Domains) == 0 {
			f.Domains = []domain.Domain{domain.DomainCodingBilling}
		}
	case domain.ClassSafety:
		f.RequireContraindicationOrDose = true
	}
	return f, topK, useReranker
}
