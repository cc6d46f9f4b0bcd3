// Package tracking serves the callback endpoints embedded in instrumented
// email: open pixel, click redirect, view-online page, feedback buttons,
// and the provider delivery-receipt webhook. Responses never surface an
// error to the mail client; failures are logged and the pixel or redirect
// is served anyway.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/pkg/logger"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Recorder is the slice of the ledger the handler writes through.
type Recorder interface {
	RecordOpen(ctx context.Context, messageID string, now time.Time) error
	RecordClick(ctx context.Context, messageID string, now time.Time) error
	RecordFeedback(ctx context.Context, messageID, response string, now time.Time) error
	ApplyReceipt(ctx context.Context, messageID string, status domain.LogStatus, at time.Time) error
	GetByMessageID(ctx context.Context, messageID string) (*domain.CommunicationLog, error)
}

type Handler struct {
	ledger Recorder
	log    *logger.Logger
	now    func() time.Time
}

func NewHandler(ledger Recorder) *Handler {
	return &Handler{
		ledger: ledger,
		log:    logger.With("tracking"),
		now:    time.Now,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/open/{messageID}", h.HandleOpen)
	r.Get("/click/{messageID}", h.HandleClick)
	r.Get("/view/{messageID}", h.HandleView)
	r.Get("/feedback/{messageID}", h.HandleFeedback)
	r.Post("/receipt", h.HandleReceipt)
	return r
}

func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	if err := h.ledger.RecordOpen(r.Context(), messageID, h.now()); err != nil {
		h.log.Warn("open not recorded", "message_id", messageID, "error", err.Error())
	}
	h.servePixel(w)
}

func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	target := r.URL.Query().Get("url")

	if err := h.ledger.RecordClick(r.Context(), messageID, h.now()); err != nil {
		h.log.Warn("click not recorded", "message_id", messageID, "error", err.Error())
	}
	if target == "" {
		h.servePixel(w)
		return
	}
	// The reader gets their link regardless of ledger state
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleView serves the view-in-browser page. Loading it counts as an open:
// the reader has seen the content even if their client blocked the pixel.
func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	if err := h.ledger.RecordOpen(r.Context(), messageID, h.now()); err != nil {
		h.log.Warn("view not recorded", "message_id", messageID, "error", err.Error())
	}

	subject := "Your message"
	if entry, err := h.ledger.GetByMessageID(r.Context(), messageID); err == nil {
		subject = entry.Subject
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
		<h1>%s</h1>
		<p>This message was sent to you by email. Open it in your mail client for the full content.</p>
	</body></html>`, html.EscapeString(subject))
}

func (h *Handler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	response := r.URL.Query().Get("response")
	if response != "yes" && response != "no" {
		response = "unknown"
	}

	if err := h.ledger.RecordFeedback(r.Context(), messageID, response, h.now()); err != nil {
		h.log.Warn("feedback not recorded", "message_id", messageID, "error", err.Error())
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(`<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
		<h1>Thank you!</h1>
		<p>Your response has been recorded.</p>
	</body></html>`))
}

// receiptPayload is the provider webhook body.
type receiptPayload struct {
	MessageID string    `json:"message_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) HandleReceipt(w http.ResponseWriter, r *http.Request) {
	var p receiptPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.MessageID == "" {
		http.Error(w, "bad receipt", http.StatusBadRequest)
		return
	}
	at := p.Timestamp
	if at.IsZero() {
		at = h.now()
	}

	if err := h.ledger.ApplyReceipt(r.Context(), p.MessageID, domain.LogStatus(p.Status), at); err != nil {
		h.log.Warn("receipt not applied",
			"message_id", p.MessageID, "status", p.Status, "error", err.Error())
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}
