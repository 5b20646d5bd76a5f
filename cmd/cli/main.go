package main

import (
	"os"

	"github.com/dma198/pg2sqlite/internal/config"
	"github.com/joho/godotenv"
)

func main() {
	// PG2SQLITE_* settings may come from a local .env file
	_ = godotenv.Load()

	if err := config.Execute(); err != nil {
		os.Exit(1)
	}
}
