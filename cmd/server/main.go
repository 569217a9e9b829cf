// Command tipbot-server runs the custodial tipping service: the gRPC API, the
// metrics endpoint and the background reconciler.
package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/tipbot/internal/server"
	"github.com/dmitrijs2005/tipbot/internal/server/config"
)

func main() {
	app, err := server.NewApp(config.LoadConfig())
	if err != nil {
		log.Fatalf("tipbot-server: %v", err)
	}
	app.Run(context.Background())
}
