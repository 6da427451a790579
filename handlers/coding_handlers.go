package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ipassist/ipassist-core/internal/coding"
)

// CodingHandlers serves the deterministic procedural coding path.
type CodingHandlers struct {
	kb     *coding.KB
	engine *coding.Engine
}

// NewCodingHandlers constructs the coding handlers.
func NewCodingHandlers(kb *coding.KB, engine *coding.Engine) *CodingHandlers {
	return &CodingHandlers{kb: kb, engine: engine}
}

type codingRequest struct {
	Note      string         `json:"note" binding:"required"`
	PatientCtx map[string]any `json:"patient_ctx"`
}

type codingResponse struct {
	PrimaryCPTs    []string          `json:"primary_cpts"`
	AddOnCPTs      []string          `json:"add_on_cpts"`
	HCPCS          []string          `json:"hcpcs"`
	Modifiers      []string          `json:"modifiers"`
	SedationFamily string            `json:"sedation_family"`
	ICD10PCS       []string          `json:"icd10_pcs"`
	Suppressed     []suppressedCode  `json:"suppressed"`
	Warnings       []string          `json:"warnings"`
	KBVersion      string            `json:"kb_version"`
	Explanations   map[string]string `json:"explanations"`
}

type suppressedCode struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type kbInfoResponse struct {
	Version     string   `json:"version"`
	SourcePaths []string `json:"source_paths"`
}

// GetKB handles GET /api/v1/coding/kb, reporting the currently loaded
// coding knowledge base's version and source files.
func (h *CodingHandlers) GetKB(c *gin.Context) {
	c.JSON(http.StatusOK, kbInfoResponse{
		Version:     h.kb.Version,
		SourcePaths: h.kb.SourcePaths,
	})
}

// Code handles POST /api/v1/coding.
func (h *CodingHandlers) Code(c *gin.Context) {
	var req codingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	ext := coding.Extract(req.Note)
	bundle := h.engine.Apply(ext, req.Note)

	explanations := make(map[string]string, len(bundle.PrimaryCPTs)+len(bundle.AddOnCPTs))
	for _, code := range append(append([]string{}, bundle.PrimaryCPTs...), bundle.AddOnCPTs...) {
		explanations[code] = coding.Explain(h.kb, code, req.Note, ext)
	}

	suppressed := make([]suppressedCode, 0, len(bundle.SuppressedWithReason))
	for _, s := range bundle.SuppressedWithReason {
		suppressed = append(suppressed, suppressedCode{Code: s.Code, Reason: s.Reason})
	}

	if ext.LowConfidence {
		c.JSON(http.StatusOK, codingResponse{
			Warnings:  []string{"manual coding required"},
			KBVersion: h.kb.Version,
		})
		return
	}

	c.JSON(http.StatusOK, codingResponse{
		PrimaryCPTs:    bundle.PrimaryCPTs,
		AddOnCPTs:      bundle.AddOnCPTs,
		HCPCS:          bundle.HCPCS,
		Modifiers:      bundle.Modifiers,
		SedationFamily: bundle.SedationFamily,
		ICD10PCS:       bundle.ICD10PCS,
		Suppressed:     suppressed,
		Warnings:       bundle.Warnings,
		KBVersion:      bundle.KBVersion,
		Explanations:   explanations,
	})
}
