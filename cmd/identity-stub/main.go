package main

import (
	"context"
	"log"

	"github.com/aussiebroadwan/brewhouse/internal/app"
)

func main() {
	cfg := app.LoadConfig()

	stub := app.NewIdentityStub(context.Background(), cfg)
	if err := stub.Run(); err != nil {
		log.Fatalf("identity stub error: %v", err)
	}
}
