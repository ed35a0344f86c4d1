package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/promohub/promohub-api/internal/config"
	"github.com/promohub/promohub-api/internal/domain/livead"
	"github.com/promohub/promohub-api/internal/domain/wallet"
	"github.com/promohub/promohub-api/internal/pkg/database"
	"github.com/promohub/promohub-api/internal/pkg/jwt"
)

// debug_login mints an access token for a local account and prints the
// wallet state that account would see.
func main() {
	email := flag.String("email", "affiliate@test.com", "account email")
	role := flag.String("role", jwt.RoleAffiliate, "affiliate, business or admin")
	skipDB := flag.Bool("no-db", false, "only mint the token")
	flag.Parse()

	cfg := config.Load()

	token, err := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL).GenerateAccessToken(*email, *role)
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}
	fmt.Println("--- Access token ---")
	fmt.Println(token)
	fmt.Println("--------------------")

	if *skipDB {
		return
	}

	db, err := database.NewPostgres(cfg.DatabaseURL, database.PoolOptions{MaxOpenConns: 2})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.ClosePostgres(db)

	ctx := context.Background()
	bal, err := wallet.NewService(wallet.NewRepository(db), nil).AvailableBalance(ctx, *email)
	if err != nil {
		log.Fatalf("Balance read failed: %v", err)
	}
	fmt.Printf("Top-ups (net): %s\n", bal.TotalTopUpsNet.StringFixed(2))
	fmt.Printf("Deductions:    %s\n", bal.TotalDeductions.StringFixed(2))
	fmt.Printf("Available:     %s\n", bal.Available.StringFixed(2))

	ads, err := livead.NewRepository(db).ListByStatus(ctx, livead.StatusActive)
	if err != nil {
		log.Fatalf("Failed to list live ads: %v", err)
	}
	fmt.Println("--- Active ads ---")
	for _, ad := range ads {
		if wallet.NormalizeEmail(ad.AffiliateEmail) != wallet.NormalizeEmail(*email) {
			continue
		}
		fmt.Printf("%s meta=%s spend=%s transferred=%s unpaid=%s\n",
			ad.ID, ad.MetaAdID, ad.Spend.StringFixed(2), ad.SpendTransferred.StringFixed(2), ad.Unpaid().StringFixed(2))
	}
	fmt.Println("------------------")
}
