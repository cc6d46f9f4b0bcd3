package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/latticecrm/lattice/internal/domain"
)

func TestSendGridSend(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantAuth   bool
		wantOK     bool
	}{
		{"accepted", http.StatusAccepted, "", false, true},
		{"rate limited", http.StatusTooManyRequests, `{"errors":[]}`, false, false},
		{"bad key", http.StatusUnauthorized, `{"errors":[{"message":"bad key"}]}`, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				var payload map[string]interface{}
				if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
					t.Errorf("bad payload: %v", err)
				}
				if payload["subject"] != "hi" {
					t.Errorf("subject = %v", payload["subject"])
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			s := NewSendGridSender("sg-key")
			s.baseURL = srv.URL
			res, err := s.Send(context.Background(), msgTo("ada@example.com"))

			if tt.wantAuth {
				var authErr *AuthError
				if !errors.As(err, &authErr) {
					t.Fatalf("want AuthError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if res.Success != tt.wantOK {
				t.Errorf("success = %v, want %v", res.Success, tt.wantOK)
			}
			if gotAuth != "Bearer sg-key" {
				t.Errorf("auth header = %q", gotAuth)
			}
		})
	}
}

func TestResendSendParsesID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"re-123"}`))
	}))
	defer srv.Close()

	s := NewResendSender("re-key")
	s.baseURL = srv.URL
	res, err := s.Send(context.Background(), msgTo("ada@example.com"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Success || res.ProviderID != "re-123" {
		t.Errorf("result = %+v", res)
	}
}

func TestBrevoSendUsesAPIKeyHeader(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-key")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"messageId":"br-9"}`))
	}))
	defer srv.Close()

	s := NewBrevoSender("br-key")
	s.baseURL = srv.URL
	res, err := s.Send(context.Background(), msgTo("ada@example.com"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotKey != "br-key" {
		t.Errorf("api-key header = %q", gotKey)
	}
	if res.ProviderID != "br-9" {
		t.Errorf("provider id = %q", res.ProviderID)
	}
}

func TestGmailSendRawPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["raw"] == "" {
			t.Error("missing raw MIME payload")
		}
		w.Write([]byte(`{"id":"gm-1"}`))
	}))
	defer srv.Close()

	s := NewGmailSender("token")
	s.baseURL = srv.URL
	res, err := s.Send(context.Background(), msgTo("ada@example.com"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Success || res.ProviderID != "gm-1" {
		t.Errorf("result = %+v", res)
	}
}

func TestSMTPSenderSend(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", 587, "crm@example.com", "secret")

	var gotAddr, gotFrom string
	var gotTo []string
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo = addr, from, to
		if !strings.Contains(string(msg), "Subject: hi") {
			t.Errorf("message missing subject: %q", msg)
		}
		return nil
	}

	res, err := s.Send(context.Background(), msgTo("ada@example.com"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Success || res.Provider != domain.ProviderSMTP {
		t.Errorf("result = %+v", res)
	}
	if gotAddr != "smtp.example.com:587" || gotFrom != "crm@example.com" {
		t.Errorf("addr=%q from=%q", gotAddr, gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "ada@example.com" {
		t.Errorf("to = %v", gotTo)
	}

	// Auth failures are not retryable
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return errors.New("535 5.7.8 authentication failed")
	}
	_, err = s.Send(context.Background(), msgTo("ada@example.com"))
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("want AuthError, got %v", err)
	}
}
