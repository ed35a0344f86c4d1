package metaads

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestGetAdInsightsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v19.0/123/insights" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("invalid route " + r.URL.Path))
			return
		}
		if r.URL.Query().Get("fields") != "spend,clicks" || r.URL.Query().Get("date_preset") != "maximum" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("invalid query"))
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("User-Agent") != "PromoHub/1.0 spend-sync" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("invalid user agent"))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"spend":"42.17","clicks":"311","date_start":"2026-01-01"}]}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "v19.0", time.Second, "PromoHub/1.0 spend-sync")
	got, err := client.GetAdInsights(context.Background(), "123", "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Spend.Equal(decimal.RequireFromString("42.17")) || got.Clicks != 311 {
		t.Fatalf("unexpected insights %+v", got)
	}
}

func TestGetAdInsightsNoDeliveryIsZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	t.Cleanup(server.Close)

	got, err := NewClient(server.URL, "v19.0", time.Second, "").GetAdInsights(context.Background(), "123", "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Spend.IsZero() || got.Clicks != 0 {
		t.Fatalf("expected zero insights, got %+v", got)
	}
}

func TestGraphErrorIsDecoded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190}}`))
	}))
	t.Cleanup(server.Close)

	_, err := NewClient(server.URL, "v19.0", time.Second, "").GetAdInsights(context.Background(), "123", "tok")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != 190 || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if !strings.Contains(err.Error(), "OAuthException") {
		t.Fatalf("expected type in message, got %v", err)
	}
}

func TestSetAdStatusPaused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v19.0/987" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("status") != "PAUSED" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("invalid status"))
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(server.Close)

	if err := NewClient(server.URL, "v19.0", time.Second, "").SetAdStatus(context.Background(), "987", "tok", StatusPaused); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidation(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "v19.0", time.Second, "")
	if _, err := c.GetAdInsights(context.Background(), "", "tok"); !errors.Is(err, ErrInvalidAdID) {
		t.Fatalf("expected ErrInvalidAdID, got %v", err)
	}
	if err := c.SetAdStatus(context.Background(), "1", "", StatusPaused); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
	if err := c.SetAdStatus(context.Background(), "1", "tok", "DELETED"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestTimeoutClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	t.Cleanup(server.Close)

	_, err := NewClient(server.URL, "v19.0", 50*time.Millisecond, "").GetAdInsights(context.Background(), "1", "tok")
	if err == nil || !strings.Contains(err.Error(), "meta graph timeout") {
		t.Fatalf("expected timeout classification, got %v", err)
	}
}
