package main

import (
	"log"
	"os"

	"github.com/jwhector/yggdrasil/internal/application/startup"
)

func main() {
	if err := startup.Initialize(); err != nil {
		log.Fatalf("application startup failed: %v", err)
		os.Exit(1)
	}

	log.Println("application has shut down gracefully")
}
