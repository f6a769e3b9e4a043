package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Println("Warning: Failed to load environment variables", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
