package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"vedarc.org/internal/migrate"
	"vedarc.org/ops/migrations"
)

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()
	var (
		dsn            = flag.String("dsn", os.Getenv("VEDARC_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "", "Directory of SQL migrations (default: embedded)")
		seedsPath      = flag.String("seeds", "", "Directory of SQL seeds (default: embedded)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or VEDARC_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down [N]|seed|status]")
	}

	schema, seeds := migrations.Schema(), migrations.Seeds()
	if *migrationsPath != "" {
		schema = os.DirFS(*migrationsPath)
	}
	if *seedsPath != "" {
		seeds = os.DirFS(*seedsPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, schema, seeds)

	var names []string
	switch flag.Arg(0) {
	case "up":
		names, err = mgr.Up(ctx)
	case "down":
		steps := 1
		if flag.NArg() > 1 {
			if steps, err = strconv.Atoi(flag.Arg(1)); err != nil || steps < 1 {
				log.Fatalf("invalid step count %q", flag.Arg(1))
			}
		}
		names, err = mgr.Down(ctx, steps)
	case "seed":
		names, err = mgr.Seed(ctx)
	case "status":
		var entries []migrate.Entry
		entries, err = mgr.Status(ctx)
		for _, e := range entries {
			fmt.Println(e)
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if errors.Is(err, migrate.ErrNothingToRollback) {
		log.Printf("migrate %s: %v", flag.Arg(0), err)
		return
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
	for _, n := range names {
		fmt.Printf("%s %s\n", flag.Arg(0), n)
	}
	if len(names) == 0 && flag.Arg(0) != "status" {
		fmt.Println("nothing to do")
	}
}
