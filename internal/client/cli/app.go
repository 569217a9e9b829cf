package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/tipbot/internal/client/client"
	"github.com/dmitrijs2005/tipbot/internal/client/config"
	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/server/auth"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config *config.Config
	api    client.Client
	reader *bufio.Reader
	out    io.Writer

	mu   sync.Mutex
	mode Mode
}

// getSecret is a seam for reading the token secret from the terminal.
var getSecret = GetSecret

func NewApp(c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	secret, err := loadSecret(c.SecretKeyEnv)
	if err != nil {
		return nil, err
	}

	tokens := func() (string, error) {
		return auth.GenerateToken(c.Operator, secret, c.TokenValidity)
	}

	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr, tokens)
	if err != nil {
		common.WipeByteArray(secret)
		return nil, err
	}

	return &App{config: c, api: apiClient, reader: bufio.NewReader(os.Stdin), out: os.Stdout}, nil
}

func loadSecret(envVar string) ([]byte, error) {
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		return []byte(v), nil
	}
	secret, err := getSecret(os.Stdout, "Server secret key")
	if err != nil {
		return nil, fmt.Errorf("read secret: %w", err)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("empty secret key")
	}
	return secret, nil
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != mode {
		a.mode = mode
		log.Printf("Switched to %s mode\n", mode)
	}
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) Run(ctx context.Context) {
	defer a.api.Close()
	a.Root(ctx)
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := a.api.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}
