// Command migrate applies or rolls back database migrations. The server also
// migrates on boot; this exists for operating on the schema independently.
package main

import (
	"flag"
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/brojonat/chainledger/service/db"
)

func main() {
	down := flag.Bool("down", false, "roll back the most recent migration instead of applying")
	flag.Parse()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	if *down {
		if err := db.RollbackMigrations(databaseURL); err != nil {
			fmt.Fprintf(os.Stderr, "rollback failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("rolled back one migration")
		return
	}

	if err := db.RunMigrations(databaseURL); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migrations applied")
}
