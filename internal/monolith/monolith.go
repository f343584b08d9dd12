// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/flashloan-arbitrage/internal/asset"
	"github.com/fd1az/flashloan-arbitrage/internal/config"
	"github.com/fd1az/flashloan-arbitrage/internal/di"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
	"github.com/fd1az/flashloan-arbitrage/internal/postgres"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	EthClient(network string) (*ethclient.Client, bool)
	Tokens() *asset.Registry
	Postgres() *postgres.Client
	Services() di.ServiceRegistry
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// Shutdowner is implemented by modules with background work to stop.
type Shutdowner interface {
	Shutdown(Monolith)
}

// EthClients maps network name to its RPC client.
type EthClients map[string]*ethclient.Client

// Global service names.
const (
	ServiceConfig     = "config"
	ServiceLogger     = "logger"
	ServiceEthClients = "ethClients"
	ServiceTokens     = "tokens"
	ServicePostgres   = "postgres" // *postgres.Client, nil when persistence is disabled
)

type app struct {
	config     *config.Config
	logger     logger.LoggerInterface
	ethClients EthClients
	tokens     *asset.Registry
	db         *postgres.Client
	container  di.Container
}

// New dials every configured network, builds the token registry and, when
// enabled, opens and migrates the PostgreSQL pool.
func New(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	tokens, err := BuildTokenRegistry(cfg.Tokens)
	if err != nil {
		return nil, err
	}

	clients := make(EthClients, len(cfg.Networks))
	for _, n := range cfg.Networks {
		client, err := ethclient.DialContext(ctx, n.RPCURL)
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("dial %s: %w", n.Name, err)
		}
		clients[n.Name] = client
	}

	var db *postgres.Client
	if cfg.Postgres.Enabled {
		db, err = postgres.New(ctx, postgres.Config{DSN: cfg.Postgres.DSN, MaxConns: cfg.Postgres.MaxConns})
		if err == nil {
			err = db.RunMigrations(ctx)
			if err != nil {
				db.Close()
			}
		}
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, err
		}
		log.Info(ctx, "postgres connected", "max_conns", cfg.Postgres.MaxConns)
	}

	container := di.NewContainer()
	container.Register(ServiceConfig, cfg)
	container.Register(ServiceLogger, log)
	container.Register(ServiceEthClients, clients)
	container.Register(ServiceTokens, tokens)
	container.Register(ServicePostgres, db)

	return &app{
		config:     cfg,
		logger:     log,
		ethClients: clients,
		tokens:     tokens,
		db:         db,
		container:  container,
	}, nil
}

// BuildTokenRegistry registers every configured token.
func BuildTokenRegistry(tokens []config.TokenConfig) (*asset.Registry, error) {
	reg := asset.NewRegistry()
	for _, t := range tokens {
		if err := reg.Register(asset.Token{
			Symbol:   t.Symbol,
			Network:  t.Network,
			Address:  common.HexToAddress(t.Address),
			Decimals: t.Decimals,
		}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) EthClient(network string) (*ethclient.Client, bool) {
	c, ok := a.ethClients[network]
	return c, ok
}

func (a *app) Tokens() *asset.Registry {
	return a.tokens
}

func (a *app) Postgres() *postgres.Client {
	return a.db
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// ShutdownModules stops modules in reverse order.
func (a *app) ShutdownModules(modules ...Module) {
	for i := len(modules) - 1; i >= 0; i-- {
		if s, ok := modules[i].(Shutdowner); ok {
			s.Shutdown(a)
		}
	}
}

// Close closes every RPC connection and the database pool.
func (a *app) Close() error {
	for _, c := range a.ethClients {
		c.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
