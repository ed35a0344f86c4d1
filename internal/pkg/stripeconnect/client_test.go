package stripeconnect

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCreateTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/transfers" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Idempotency-Key") != "settle:ad-1:30" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"missing idempotency key"}}`))
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("amount") != "3000" || r.PostForm.Get("destination") != "acct_123" || r.PostForm.Get("currency") != "usd" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad form ` + r.PostForm.Encode() + `"}}`))
			return
		}
		if r.PostForm.Get("metadata[live_ad_id]") != "ad-1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"missing metadata"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"tr_1","object":"transfer","amount":3000,"currency":"usd","destination":"acct_123"}`))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{SecretKey: "sk_test_x", APIURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	tr, err := client.CreateTransfer(context.Background(), TransferRequest{
		Destination:    "acct_123",
		Amount:         decimal.NewFromInt(30),
		Currency:       "USD",
		IdempotencyKey: "settle:ad-1:30",
		Metadata:       map[string]string{"live_ad_id": "ad-1"},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if tr.ID != "tr_1" || !tr.Amount.Equal(decimal.NewFromInt(30)) || tr.Destination != "acct_123" {
		t.Fatalf("unexpected transfer %+v", tr)
	}
}

func TestCreateTransferSurfacesStripeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"balance_insufficient","message":"Insufficient funds in Stripe account."}}`))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{SecretKey: "sk_test_x", APIURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.CreateTransfer(context.Background(), TransferRequest{Destination: "acct_1", Amount: decimal.NewFromInt(5)})
	if err == nil || !strings.Contains(err.Error(), "balance_insufficient") {
		t.Fatalf("expected stripe error code in message, got %v", err)
	}
}

func TestCreateTransferValidation(t *testing.T) {
	client, err := NewClient(Config{SecretKey: "sk_test_x", APIURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.CreateTransfer(context.Background(), TransferRequest{Amount: decimal.NewFromInt(1)}); !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("expected ErrInvalidTransfer, got %v", err)
	}
	bad := TransferRequest{Destination: "acct_1", Amount: decimal.NewFromInt(1), Currency: "dollars"}
	if _, err := client.CreateTransfer(context.Background(), bad); !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("expected ErrInvalidTransfer for bad currency, got %v", err)
	}
	if _, err := NewClient(Config{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
