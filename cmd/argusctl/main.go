// Command argusctl answers queries and recomputes structural scores against a JSONL
// snapshot, without running the server.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
