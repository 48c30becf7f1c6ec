package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"vedarc.org/internal/auth"
	"vedarc.org/internal/domain"
	"vedarc.org/internal/store/pg"
)

// operator creates an HR, manager or admin dashboard login.
func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	var (
		dsn      = flag.String("dsn", os.Getenv("VEDARC_PG_DSN"), "PostgreSQL DSN")
		username = flag.String("username", "", "Login name")
		fullName = flag.String("name", "", "Display name")
		roleName = flag.String("role", "", "hr, manager or admin")
		password = flag.String("password", "", "Password; generated when empty")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or VEDARC_PG_DSN")
	}
	role, err := domain.ParseRole(*roleName)
	if err != nil || role == domain.RoleStudent {
		log.Fatalf("invalid -role %q: want hr, manager or admin", *roleName)
	}
	name := strings.TrimSpace(*username)
	if name == "" {
		log.Fatal("usage: operator -username NAME -role ROLE [-name DISPLAY] [-password PW]")
	}

	pw := *password
	generated := pw == ""
	if generated {
		if pw, err = auth.GeneratePassword(12); err != nil {
			log.Fatalf("generate password: %v", err)
		}
	}
	hash, err := auth.HashPassword(pw)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	display := strings.TrimSpace(*fullName)
	if display == "" {
		display = name
	}
	if err := store.CreateOperator(ctx, domain.Operator{
		Username:     name,
		FullName:     display,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		log.Fatalf("create operator: %s", domain.Message(err))
	}

	fmt.Printf("created %s operator %s\n", role, strings.ToLower(name))
	if generated {
		fmt.Printf("password: %s\n", pw)
	}
}
