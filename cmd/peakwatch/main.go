package main

import (
	"github.com/joho/godotenv"

	"peakwatch/internal/cli"
)

func main() {
	// Best effort: a missing .env is fine, configuration falls back to real
	// environment variables and the config file.
	_ = godotenv.Load()

	cli.Execute()
}
