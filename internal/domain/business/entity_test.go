package business

import (
	"database/sql"
	"testing"
	"time"
)

func TestMetaConnectionUsable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name string
		conn *MetaConnection
		want bool
	}{
		{"nil", nil, false},
		{"active no expiry", &MetaConnection{AccessToken: "tok", Status: ConnectionStatusActive}, true},
		{"active future expiry", &MetaConnection{AccessToken: "tok", Status: ConnectionStatusActive, ExpiresAt: &future}, true},
		{"expired", &MetaConnection{AccessToken: "tok", Status: ConnectionStatusActive, ExpiresAt: &past}, false},
		{"revoked", &MetaConnection{AccessToken: "tok", Status: "revoked"}, false},
		{"blank token", &MetaConnection{AccessToken: "  ", Status: ConnectionStatusActive}, false},
	}
	for _, tc := range cases {
		if got := tc.conn.Usable(now); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestPayoutAccount(t *testing.T) {
	b := Business{}
	if b.PayoutAccount() != "" {
		t.Fatal("expected empty account for NULL column")
	}
	b.StripeAccountID = sql.NullString{String: " acct_123 ", Valid: true}
	if b.PayoutAccount() != "acct_123" {
		t.Fatalf("unexpected account %q", b.PayoutAccount())
	}
}
