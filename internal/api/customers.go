package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/latticecrm/lattice/internal/customer"
	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/pkg/httputil"
)

func (h *Handlers) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var in domain.Customer
	if !httputil.Decode(w, r, &in) {
		return
	}
	if !domain.ValidEmail(in.Email) {
		httputil.BadRequest(w, "a valid email is required")
		return
	}
	in.OwnerID = ownerID(r)

	id, err := h.customers.Create(r.Context(), &in)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	in.ID = id
	httputil.Created(w, in)
}

func (h *Handlers) ListCustomers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	customers, err := h.customers.List(r.Context(), ownerID(r), limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if customers == nil {
		customers = []domain.Customer{}
	}
	httputil.OK(w, customers)
}

func (h *Handlers) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.customers.Get(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if errors.Is(err, customer.ErrNotFound) {
		httputil.NotFound(w, "customer not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	err := h.customers.SoftDelete(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if errors.Is(err, customer.ErrNotFound) {
		httputil.NotFound(w, "customer not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}
