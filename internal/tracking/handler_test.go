package tracking

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/latticecrm/lattice/internal/domain"
)

type recorded struct {
	kind      string
	messageID string
	status    domain.LogStatus
	response  string
}

type fakeRecorder struct {
	events []recorded
	err    error
}

func (f *fakeRecorder) RecordOpen(ctx context.Context, messageID string, now time.Time) error {
	f.events = append(f.events, recorded{kind: "open", messageID: messageID})
	return f.err
}

func (f *fakeRecorder) RecordClick(ctx context.Context, messageID string, now time.Time) error {
	f.events = append(f.events, recorded{kind: "click", messageID: messageID})
	return f.err
}

func (f *fakeRecorder) RecordFeedback(ctx context.Context, messageID, response string, now time.Time) error {
	f.events = append(f.events, recorded{kind: "feedback", messageID: messageID, response: response})
	return f.err
}

func (f *fakeRecorder) ApplyReceipt(ctx context.Context, messageID string, status domain.LogStatus, at time.Time) error {
	f.events = append(f.events, recorded{kind: "receipt", messageID: messageID, status: status})
	return f.err
}

func (f *fakeRecorder) GetByMessageID(ctx context.Context, messageID string) (*domain.CommunicationLog, error) {
	return &domain.CommunicationLog{MessageID: messageID, Subject: "Hi Ada"}, nil
}

func serve(t *testing.T, rec *fakeRecorder, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(rec)
	w := httptest.NewRecorder()
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	h.Routes().ServeHTTP(w, r)
	return w
}

func TestOpenServesPixel(t *testing.T) {
	rec := &fakeRecorder{}
	w := serve(t, rec, http.MethodGet, "/open/msg-1", nil)

	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/gif" {
		t.Errorf("status = %d, type = %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Header().Get("Cache-Control"), "no-cache") {
		t.Error("pixel is cacheable")
	}
	if len(rec.events) != 1 || rec.events[0].kind != "open" || rec.events[0].messageID != "msg-1" {
		t.Errorf("events = %+v", rec.events)
	}
}

func TestOpenServesPixelOnLedgerError(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("db down")}
	w := serve(t, rec, http.MethodGet, "/open/msg-unknown", nil)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, mail client must always get the pixel", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), pixelGIF) {
		t.Error("body is not the pixel")
	}
}

func TestClickRedirectsAlways(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("no such message")}
	w := serve(t, rec, http.MethodGet, "/click/msg-1?url=https%3A%2F%2Fshop.example.com%2Fsale", nil)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "https://shop.example.com/sale" {
		t.Errorf("location = %q", loc)
	}
}

func TestViewCountsAsOpen(t *testing.T) {
	rec := &fakeRecorder{}
	w := serve(t, rec, http.MethodGet, "/view/msg-1", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Hi Ada") {
		t.Error("view page missing subject")
	}
	if len(rec.events) != 1 || rec.events[0].kind != "open" {
		t.Errorf("events = %+v, want one open", rec.events)
	}
}

func TestFeedbackNormalizesResponse(t *testing.T) {
	rec := &fakeRecorder{}
	serve(t, rec, http.MethodGet, "/feedback/msg-1?response=yes", nil)
	serve(t, rec, http.MethodGet, "/feedback/msg-1?response=maybe", nil)

	if len(rec.events) != 2 {
		t.Fatalf("events = %+v", rec.events)
	}
	if rec.events[0].response != "yes" || rec.events[1].response != "unknown" {
		t.Errorf("responses = %q, %q", rec.events[0].response, rec.events[1].response)
	}
}

func TestReceiptAppliesStatus(t *testing.T) {
	rec := &fakeRecorder{}
	body := []byte(`{"message_id":"msg-1","status":"delivered","timestamp":"2026-03-01T10:00:00Z"}`)
	w := serve(t, rec, http.MethodPost, "/receipt", body)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if len(rec.events) != 1 || rec.events[0].status != domain.LogDelivered {
		t.Errorf("events = %+v", rec.events)
	}
}

func TestReceiptRejectsBadPayload(t *testing.T) {
	rec := &fakeRecorder{}
	w := serve(t, rec, http.MethodPost, "/receipt", []byte(`{"status":"delivered"}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(rec.events) != 0 {
		t.Errorf("events = %+v, want none", rec.events)
	}
}
