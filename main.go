package main

import (
	"github.com/joho/godotenv"

	"github.com/Flowdeck-Labs/flowdeck-node/internal/cmd"
)

func main() {
	// Optional .env for FLOWDECK_ENCRYPTION_SECRET and friends
	godotenv.Load()

	cmd.Execute()
}
