// Command tipbot-cli is the operator console for a tipbot server.
package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/tipbot/internal/client/cli"
	"github.com/dmitrijs2005/tipbot/internal/client/config"
)

func main() {
	app, err := cli.NewApp(config.LoadConfig())
	if err != nil {
		log.Fatalf("tipbot-cli: %v", err)
	}
	app.Run(context.Background())
}
