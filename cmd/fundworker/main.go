package main

import (
	"log"

	"portfolium/services/fundworker"
)

func main() {
	if err := fundworker.Main(); err != nil {
		log.Fatalf("fundworker: %v", err)
	}
}
