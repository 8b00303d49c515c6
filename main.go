package main

import (
	"os"

	"fastsearch-cache/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		os.Exit(1)
	}
}
