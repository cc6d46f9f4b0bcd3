package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/pkg/httputil"
	"github.com/latticecrm/lattice/internal/segment"
)

type segmentInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Rules       domain.RuleTree `json:"rules"`
	Tags        []string        `json:"tags"`
}

type rulesInput struct {
	Rules domain.RuleTree `json:"rules"`
}

func (h *Handlers) CreateSegment(w http.ResponseWriter, r *http.Request) {
	var in segmentInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	if in.Name == "" {
		httputil.BadRequest(w, "segment name is required")
		return
	}

	seg := &domain.Segment{
		OwnerID:     ownerID(r),
		Name:        in.Name,
		Description: in.Description,
		Rules:       in.Rules,
		Tags:        in.Tags,
	}
	if err := h.segments.Create(r.Context(), seg); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, seg)
}

func (h *Handlers) ListSegments(w http.ResponseWriter, r *http.Request) {
	segs, err := h.segments.List(r.Context(), ownerID(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if segs == nil {
		segs = []domain.Segment{}
	}
	httputil.OK(w, segs)
}

func (h *Handlers) GetSegment(w http.ResponseWriter, r *http.Request) {
	seg, err := h.segments.Get(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if errors.Is(err, segment.ErrNotFound) {
		httputil.NotFound(w, "segment not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, seg)
}

func (h *Handlers) UpdateSegment(w http.ResponseWriter, r *http.Request) {
	var in segmentInput
	if !httputil.Decode(w, r, &in) {
		return
	}

	seg := &domain.Segment{
		ID:          chi.URLParam(r, "id"),
		OwnerID:     ownerID(r),
		Name:        in.Name,
		Description: in.Description,
		Rules:       in.Rules,
		Tags:        in.Tags,
	}
	err := h.segments.Update(r.Context(), seg)
	if errors.Is(err, segment.ErrNotFound) {
		httputil.NotFound(w, "segment not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, seg)
}

func (h *Handlers) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	err := h.segments.SoftDelete(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if errors.Is(err, segment.ErrNotFound) {
		httputil.NotFound(w, "segment not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// EstimateSegment counts the audience for an unsaved rule tree.
func (h *Handlers) EstimateSegment(w http.ResponseWriter, r *http.Request) {
	var in rulesInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	count, err := h.previewer.Estimate(r.Context(), ownerID(r), in.Rules)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"estimated_count": count})
}

// PreviewSegment profiles the audience for an unsaved rule tree: sample
// rows plus demographic and spending aggregations.
func (h *Handlers) PreviewSegment(w http.ResponseWriter, r *http.Request) {
	var in rulesInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	result, err := h.previewer.Preview(r.Context(), ownerID(r), in.Rules)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, result)
}
