package api

import (
	"context"
	"net/http"

	"github.com/latticecrm/lattice/internal/pkg/httputil"
)

type ctxKey int

const ownerKey ctxKey = iota

// OwnerHeader carries the authenticated owner id. Authentication itself
// happens upstream; this server trusts the header.
const OwnerHeader = "X-Owner-ID"

func ownerContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get(OwnerHeader)
		if owner == "" {
			httputil.Unauthorized(w, "missing "+OwnerHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	})
}

func ownerID(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey).(string)
	return owner
}
