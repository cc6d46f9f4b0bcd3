package api

import (
	"net/http"

	"github.com/latticecrm/lattice/internal/content"
	"github.com/latticecrm/lattice/internal/pkg/httputil"
)

// GenerateCampaignContent produces campaign copy for a rule tree. The
// generator falls back to deterministic local templates, so this endpoint
// answers even without a configured AI key.
func (h *Handlers) GenerateCampaignContent(w http.ResponseWriter, r *http.Request) {
	var in content.ContentRequest
	if !httputil.Decode(w, r, &in) {
		return
	}

	raw, err := h.content.CampaignContent(r.Context(), in)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	subject, body, err := content.ParseTemplate(raw)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{
		"subject": subject,
		"body":    body,
	})
}

type suggestSegmentInput struct {
	Prompt string `json:"prompt"`
}

// SuggestSegment turns a natural-language audience description into a rule
// tree the segment editor can load.
func (h *Handlers) SuggestSegment(w http.ResponseWriter, r *http.Request) {
	var in suggestSegmentInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	if in.Prompt == "" {
		httputil.BadRequest(w, "prompt is required")
		return
	}

	s, err := h.content.SuggestSegment(r.Context(), in.Prompt)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	// Attach a live estimate so the editor can show reach immediately
	count, err := h.previewer.Estimate(r.Context(), ownerID(r), s.Rules)
	if err == nil {
		httputil.OK(w, map[string]interface{}{
			"suggestion":      s,
			"estimated_count": count,
		})
		return
	}
	httputil.OK(w, map[string]interface{}{"suggestion": s})
}
