// Package app wires the payments bot together: configuration, session
// store, API client, conversation engine, deposit subscriber, and the
// Telegram runtime options consumed by core/cmd.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/m3rciful/paybot/core/bootstrap"
	"github.com/m3rciful/paybot/core/cmd"
	coreconfig "github.com/m3rciful/paybot/core/config"
	tg "github.com/m3rciful/paybot/core/telegram"
	"github.com/m3rciful/paybot/flow"
	"github.com/m3rciful/paybot/notify"
	"github.com/m3rciful/paybot/payapi"
	"github.com/m3rciful/paybot/session"
)

// Config carries the core configuration for the cmd runner.
type Config struct {
	core *coreconfig.Config
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config { return c.core }

// LoadConfig reads and validates configuration for the runner.
func LoadConfig(path string) (cmd.ConfigCarrier, error) {
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return &Config{core: cfg}, nil
}

// Services aggregates the wired application components.
type Services struct {
	Store      *session.Store
	API        *payapi.Client
	Engine     *flow.Engine
	Subscriber *notify.Subscriber
}

// App is the running application. It implements cmd.TelegramApp.
type App struct {
	cfg *coreconfig.Config
	svc *Services

	mu      sync.RWMutex
	rt      tg.Runtime
	rtReady bool
	runCtx  context.Context
}

// New bootstraps the application from loaded configuration.
func New(carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg := carrier.CoreConfig()
	if cfg == nil {
		return nil, fmt.Errorf("app: missing core configuration")
	}

	store := session.NewStore(time.Duration(cfg.Session.IdleTTLMinutes) * time.Minute)

	a := &App{cfg: cfg}
	res, err := bootstrap.Run(context.Background(), bootstrap.Options{
		Config:   cfg,
		Storage:  store,
		Services: bootstrap.TypedServiceProviderFunc[*Services](a.provideServices),
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	a.svc = res.Services.(*Services)
	return a, nil
}

func (a *App) provideServices(_ context.Context, _ interface{}, storage bootstrap.Storage) (*Services, error) {
	store, ok := storage.(*session.Store)
	if !ok {
		return nil, fmt.Errorf("app: unexpected storage type %T", storage)
	}

	api := payapi.New(payapi.Config{
		BaseURL: a.cfg.API.BaseURL,
		Timeout: time.Duration(a.cfg.API.TimeoutSeconds) * time.Second,
	})

	subscriber := notify.New(
		notify.Config{Key: a.cfg.Pusher.Key, Cluster: a.cfg.Pusher.Cluster},
		api,
		a.deliverDeposit,
	)

	engine := flow.New(store, api,
		flow.WithLoginHook(func(_ context.Context, userID int64, orgID, token string) {
			subscriber.Subscribe(a.baseContext(), userID, orgID, token)
		}),
		flow.WithLogoutHook(subscriber.Unsubscribe),
	)

	return &Services{Store: store, API: api, Engine: engine, Subscriber: subscriber}, nil
}

// baseContext returns the bot's run context once available. Subscriptions
// attach to it so they outlive the update that created them.
func (a *App) baseContext() context.Context {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.runCtx != nil {
		return a.runCtx
	}
	return context.Background()
}
