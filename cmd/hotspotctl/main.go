package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/dmitrijs2005/hotspotpay/internal/cli"
	"github.com/dmitrijs2005/hotspotpay/internal/server"
	"github.com/dmitrijs2005/hotspotpay/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	app := cli.NewApp(os.Stdout, os.Stdin, func(ctx context.Context) (*server.App, error) {
		return server.NewApp(ctx, cfg, os.Stderr)
	})

	err := app.Run(ctx, os.Args[1:])
	if cerr := app.Close(); cerr != nil {
		log.Printf("close error: %v", cerr)
	}
	if err != nil {
		log.Printf("%v", err)
		if errors.Is(err, cli.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}

}
