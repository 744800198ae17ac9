package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"reparaturbonus/internal/config"
	"reparaturbonus/internal/domain/model"
	"reparaturbonus/internal/domain/ports/repository"
	"reparaturbonus/internal/infra/auth"
	pg "reparaturbonus/internal/infra/db/postgres"
	"reparaturbonus/internal/infra/db/sqlite"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed bearer tokens")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		shops repository.ShopRepository
		users repository.UserRepository
	)
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.URL)
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		shops, users = sqlite.NewShopRepo(db), sqlite.NewUserRepo(db)
	default:
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		if err := pg.Migrate(ctx, pool); err != nil {
			log.Fatalf("postgres migrate: %v", err)
		}
		shops, users = pg.NewShopRepo(pool), pg.NewUserRepo(pool)
	}

	// Fixed ids keep re-runs idempotent.
	seedShops := []struct {
		ID       string
		Name     string
		Category model.ShopCategory
		Address  string
	}{
		{"shop-naehatelier-bern", "Nähatelier Bern", model.CategoryClothing, "Kramgasse 12, 3011 Bern"},
		{"shop-schuhmacher-luzern", "Schuhmacherei Luzern", model.CategoryShoes, "Weggisgasse 5, 6004 Luzern"},
		{"shop-velowerk-zuerich", "Velowerk Zürich", model.CategoryBikes, "Langstrasse 80, 8004 Zürich"},
		{"shop-elektro-basel", "Elektro Reparatur Basel", model.CategoryElectronics, "Steinenvorstadt 20, 4051 Basel"},
	}
	for _, s := range seedShops {
		shop, err := model.NewShop(s.ID, s.Name, s.Category, s.Address)
		if err != nil {
			log.Fatalf("shop %q: %v", s.Name, err)
		}
		if err := shops.Save(ctx, repository.NoTX, shop); err != nil {
			log.Fatalf("save shop %q: %v", s.Name, err)
		}
		fmt.Printf("seeded shop: %s (id=%s, category=%s)\n", shop.Name, shop.ID, shop.Category)
	}

	seedUsers := []struct {
		ID, Name, Email string
		Role            model.Role
	}{
		{"user-demo", "Demo Kundin", "demo@example.ch", model.RoleUser},
		{"user-admin", "Programm Admin", "admin@example.ch", model.RoleAdmin},
	}
	verifier := auth.NewVerifier(cfg.Auth.HMACSecret, cfg.Auth.Issuer)
	for _, su := range seedUsers {
		u, err := model.NewUser(su.ID, su.Name, su.Email, su.Role)
		if err != nil {
			log.Fatalf("user %q: %v", su.Email, err)
		}
		if err := users.Save(ctx, repository.NoTX, u); err != nil {
			log.Fatalf("save user %q: %v", su.Email, err)
		}
		tok, err := verifier.Mint(u.ID, u.Role, *tokenTTL)
		if err != nil {
			log.Fatalf("mint token for %q: %v", su.Email, err)
		}
		fmt.Printf("seeded user: %s (id=%s, role=%s)\n  token: %s\n", u.Email, u.ID, u.Role, tok)
	}

	fmt.Println("Seeding complete.")
}
