// Package domain holds the closed-schema records shared across every
// retrieval, precedence, and coding package. Downstream code must not rely
// on fields beyond what is declared here.
package domain

// DocType enumerates the corpus's document classes.
type DocType string

const (
	DocTypeGuideline        DocType = "guideline"
	DocTypeSystematicReview DocType = "systematic_review"
	DocTypeRCT              DocType = "rct"
	DocTypeCohort           DocType = "cohort"
	DocTypeNarrativeReview  DocType = "narrative_review"
	DocTypeBookChapter      DocType = "book_chapter"
	DocTypeCase             DocType = "case"
	DocTypeJournalArticle   DocType = "journal_article"
)

// SectionKind enumerates the chunk's place within a source document.
type SectionKind string

const (
	SectionProcedure       SectionKind = "procedure"
	SectionComplications   SectionKind = "complications"
	SectionContraindication SectionKind = "contraindications"
	SectionCoding          SectionKind = "coding"
	SectionAblation        SectionKind = "ablation"
	SectionBLVR            SectionKind = "blvr"
	SectionGeneral         SectionKind = "general"
	SectionTableRow        SectionKind = "table_row"
)

// AuthorityTier ranks a document's editorial authority.
type AuthorityTier string

const (
	TierA1 AuthorityTier = "A1"
	TierA2 AuthorityTier = "A2"
	TierA3 AuthorityTier = "A3"
	TierA4 AuthorityTier = "A4"
)

// EvidenceLevel ranks the strength of a chunk's underlying evidence.
type EvidenceLevel string

const (
	LevelH1 EvidenceLevel = "H1"
	LevelH2 EvidenceLevel = "H2"
	LevelH3 EvidenceLevel = "H3"
	LevelH4 EvidenceLevel = "H4"
)

// Domain enumerates the clinical sub-domains a chunk belongs to.
type Domain string

const (
	DomainClinical             Domain = "clinical"
	DomainCodingBilling        Domain = "coding_billing"
	DomainAblation             Domain = "ablation"
	DomainLungVolumeReduction  Domain = "lung_volume_reduction"
	DomainTechnologyNavigation Domain = "technology_navigation"
)

// Tag marks a chunk with a boolean characteristic relevant to filtering and
// safety checks.
type Tag string

const (
	TagHasTable            Tag = "has_table"
	TagHasContraindication Tag = "has_contraindication"
	TagHasDose             Tag = "has_dose"
	TagHasEmergencyPattern Tag = "has_emergency_pattern"
	TagStaleCoding         Tag = "stale_coding"
)

// Chunk is the atomic unit of retrieval, produced once by the ingestion
// collaborator and immutable for the life of the server process.
type Chunk struct {
	ChunkID       string        `json:"chunk_id"`
	Text          string        `json:"text"`
	DocID         string        `json:"doc_id"`
	DocType       DocType       `json:"doc_type"`
	SectionTitle  string        `json:"section_title"`
	SectionKind   SectionKind   `json:"section_kind"`
	Year          int           `json:"year"`
	AuthorityTier AuthorityTier `json:"authority_tier"`
	EvidenceLevel EvidenceLevel `json:"evidence_level"`
	Domain        Domain        `json:"domain"`
	CPTCodes      []string      `json:"cpt_codes"`
	Aliases       []string      `json:"aliases"`
	Tags          []Tag         `json:"tags"`
}

// HasTag reports whether the chunk carries the given tag.
func (c Chunk) HasTag(t Tag) bool {
	for _, tag := range c.Tags {
		if tag == t {
			return true
		}
	}
	return false
}

// SourceFlag records which retrieval path surfaced a hit.
type SourceFlag string

const (
	SourceDense  SourceFlag = "dense"
	SourceSparse SourceFlag = "sparse"
	SourceExact  SourceFlag = "exact"
)

// RetrievedHit is one scored candidate produced by the hybrid retriever.
type RetrievedHit struct {
	ChunkID       string
	RawScoreBySource map[SourceFlag]float64
	FinalScore    float64
	RerankScore   float64
	SourceFlags   map[SourceFlag]bool
	Chunk         Chunk
}

// HasSource reports whether the hit was surfaced by the given retrieval path.
func (h RetrievedHit) HasSource(f SourceFlag) bool {
	return h.SourceFlags[f]
}

// Classification is the orchestrator's single query-intent label.
type Classification string

const (
	ClassEmergency Classification = "emergency"
	ClassClinical  Classification = "clinical"
	ClassProcedure Classification = "procedure"
	ClassCoding    Classification = "coding"
	ClassSafety    Classification = "safety"
)

// Filters narrows the retrieval candidate set. Zero values mean "no
// constraint" for that dimension.
type Filters struct {
	AuthorityTiers       []AuthorityTier
	YearMin, YearMax     int
	Domains              []Domain
	SectionKinds         []SectionKind
	HasTable             bool
	HasContraindication  bool
	HasDose              bool
	RequireContraindicationOrDose bool
}

// Message is one turn in a conversation, mirroring the LLM wrapper's wire
// shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryContext threads one request's state through the orchestrator. It is
// owned exclusively by the request that created it.
type QueryContext struct {
	RawText            string
	NormalizedText     string
	Classification     Classification
	Filters            Filters
	TopK               int
	UseReranker         bool
	SessionID           string
	ConversationHistory []Message
}

// Citation is a resolved bibliographic reference for a cited chunk's
// parent document.
type Citation struct {
	ChunkID string  `json:"chunk_id"`
	DocID   string  `json:"doc_id"`
	Authors string  `json:"authors"`
	Year    int     `json:"year"`
	Title   string  `json:"title"`
	Venue   string  `json:"venue"`
	Visible bool    `json:"visible"`
}
