package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/pointledger/internal/server"
	"github.com/dmitrijs2005/pointledger/internal/server/config"
	"github.com/joho/godotenv"
)

func main() {

	// a missing .env is fine; real environment variables still apply
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env loaded: %v", err)
	}

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
