package main

import (
	"os"

	"github.com/henryzz0/OSSGadget/internal/cli"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
