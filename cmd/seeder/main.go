package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/evolgroups/lead-outreach/internal/store"
)

// seeder creates the quota and sent-lead tables for the postgres store
// backend. Safe to run repeatedly.
func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("OUTREACH_STORE_POSTGRES_DSN")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		log.Fatal("set OUTREACH_STORE_POSTGRES_DSN or DATABASE_URL")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if _, err := db.Exec(store.Schema); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	fmt.Println("Schema applied successfully")
}
