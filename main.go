package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"boltbridge/internal/cmd"
)

func main() {
	// .env is optional; its values reach viper through BOLTBRIDGE_* keys.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
