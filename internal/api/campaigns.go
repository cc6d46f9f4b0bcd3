package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/latticecrm/lattice/internal/campaign"
	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/pkg/httputil"
)

// CreateCampaign validates, persists a draft, and kicks off background
// dispatch. The response is the draft; progress shows up in later reads.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}

	c, err := h.campaigns.Create(r.Context(), ownerID(r), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.Created(w, c)
}

func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.campaigns.List(r.Context(), ownerID(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if campaigns == nil {
		campaigns = []domain.Campaign{}
	}
	httputil.OK(w, campaigns)
}

func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), ownerID(r), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.NoContent(w)
}

// RefreshCampaignStats recomputes counters from the communication ledger.
func (h *Handlers) RefreshCampaignStats(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.RefreshStats(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) ListCampaignLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	logs, err := h.campaigns.Logs(r.Context(), ownerID(r), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if logs == nil {
		logs = []domain.CommunicationLog{}
	}
	httputil.OK(w, logs)
}
