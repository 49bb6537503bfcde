package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"bodega/backend/internal/config"
	"bodega/backend/internal/store/memory"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := []config.Config{
		{AuthSecret: "short", AccessPassword: "caja-registradora"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", AccessPassword: ""},
		{AuthSecret: "0123456789abcdef0123456789abcdef", AccessPassword: "Password"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", AccessPassword: "zzzzzzzzzz"},
	}
	for _, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("expected weak security config to be rejected: %+v", cfg)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", AccessPassword: "caja-registradora"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestOpenRepositoryFallsBackToMemory(t *testing.T) {
	ctx := context.Background()

	repo, closers, err := openRepository(ctx, config.Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open seeded repository: %v", err)
	}
	if len(closers) != 0 {
		t.Fatalf("expected nothing to close for memory store")
	}
	products, err := repo.ListProducts(ctx)
	if err != nil || len(products) == 0 {
		t.Fatalf("expected seeded catalogue, got %d (%v)", len(products), err)
	}

	path := filepath.Join(t.TempDir(), "bodega.json")
	repo, _, err = openRepository(ctx, config.Config{DataFile: path}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open snapshot repository: %v", err)
	}
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected memory store backed by snapshot, got %T", repo)
	}
	products, err = repo.ListProducts(ctx)
	if err != nil || len(products) != 0 {
		t.Fatalf("expected empty catalogue for new snapshot, got %d (%v)", len(products), err)
	}
}
