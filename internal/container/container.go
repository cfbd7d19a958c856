// Package container wires the selfrecall services using go.uber.org/dig.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"github.com/selfrecall/selfrecall/internal/announce"
	"github.com/selfrecall/selfrecall/internal/api"
	"github.com/selfrecall/selfrecall/internal/bus"
	"github.com/selfrecall/selfrecall/internal/channels"
	"github.com/selfrecall/selfrecall/internal/command"
	"github.com/selfrecall/selfrecall/internal/config"
	"github.com/selfrecall/selfrecall/internal/heartbeat"
	"github.com/selfrecall/selfrecall/internal/history"
	"github.com/selfrecall/selfrecall/internal/metrics"
	"github.com/selfrecall/selfrecall/internal/recall"
)

// Container holds the resolved service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	msgBus    *bus.MessageBus
	store     *config.RecallStore
	manager   *channels.Manager
	recall    *recall.Service
	router    *command.Router
	history   *history.Store
	announcer *announce.Service
	heartbeat *heartbeat.Service
	api       *api.Server

	closers []func() error
}

func (c *Container) MessageBus() *bus.MessageBus      { return c.msgBus }
func (c *Container) RecallStore() *config.RecallStore { return c.store }
func (c *Container) Channels() *channels.Manager      { return c.manager }
func (c *Container) Recall() *recall.Service          { return c.recall }
func (c *Container) Router() *command.Router          { return c.router }
func (c *Container) History() *history.Store          { return c.history }
func (c *Container) Announcer() *announce.Service     { return c.announcer }
func (c *Container) Heartbeat() *heartbeat.Service    { return c.heartbeat }
func (c *Container) API() *api.Server                 { return c.api }

// Close releases the history database and the Redis client.
func (c *Container) Close() error {
	var errs []error
	for _, fn := range c.closers {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}

// configPath locates the file whitelist edits are written back to.
type configPath string

// overrideBackend pairs the store with its cleanup.
type overrideBackend struct {
	store recall.OverrideStore
	close func() error
}

// New builds and wires all services from cfg. path is the config file
// whitelist edits are persisted to; empty keeps them in memory.
func New(cfg *config.Config, path string) (*Container, error) {
	d := dig.New()

	providers := []any{
		func() *config.Config { return cfg },
		func() configPath { return configPath(path) },
		newMessageBus,
		newRecallStore,
		newChannelManager,
		newOverrideBackend,
		recall.NewRegistry,
		newPolicy,
		newHistory,
		newScheduler,
		newRecallService,
		newRouter,
		newAnnouncer,
		newHeartbeat,
		newAPIServer,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		msgBus *bus.MessageBus,
		store *config.RecallStore,
		manager *channels.Manager,
		overrides overrideBackend,
		svc *recall.Service,
		router *command.Router,
		hist *history.Store,
		announcer *announce.Service,
		hb *heartbeat.Service,
		srv *api.Server,
	) {
		manager.SetRecaller(svc)
		result = &Container{
			msgBus:    msgBus,
			store:     store,
			manager:   manager,
			recall:    svc,
			router:    router,
			history:   hist,
			announcer: announcer,
			heartbeat: hb,
			api:       srv,
			closers:   []func() error{hist.Close, overrides.close},
		}
	})
	if err != nil {
		return nil, fmt.Errorf("container: %w", dig.RootCause(err))
	}
	return result, nil
}

func newMessageBus() *bus.MessageBus {
	return bus.NewMessageBus(100)
}

func newRecallStore(cfg *config.Config, path configPath) *config.RecallStore {
	return config.NewRecallStore(cfg.Recall, string(path))
}

func newChannelManager(cfg *config.Config, b *bus.MessageBus) *channels.Manager {
	return channels.NewManager(cfg, b)
}

func newOverrideBackend(cfg *config.Config) (overrideBackend, error) {
	st := cfg.Storage
	switch st.OverrideBackend {
	case "", "memory":
		return overrideBackend{store: recall.NewMemoryOverrides(), close: func() error { return nil }}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     st.RedisAddr,
			Password: st.RedisPassword,
			DB:       st.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return overrideBackend{}, fmt.Errorf("redis %s: %w", st.RedisAddr, err)
		}
		ttl := time.Duration(st.OverrideTTL) * time.Second
		slog.Info("override store: redis", "addr", st.RedisAddr, "prefix", st.RedisPrefix, "ttl", ttl)
		return overrideBackend{
			store: recall.NewRedisOverrides(client, st.RedisPrefix, ttl),
			close: client.Close,
		}, nil
	}
	return overrideBackend{}, fmt.Errorf("unknown override backend %q", st.OverrideBackend)
}

func newPolicy(manager *channels.Manager) *recall.Policy {
	return recall.NewPolicy(manager)
}

func newHistory(cfg *config.Config) (*history.Store, error) {
	return history.Open(cfg.HistoryPath())
}

func newScheduler(cfg *config.Config, reg *recall.Registry, manager *channels.Manager, hist *history.Store) *recall.Scheduler {
	metrics.Init()
	return recall.NewScheduler(reg, manager, cfg.Recall.DeleteTimeoutDuration(), metrics.Observer{}, hist)
}

func newRecallService(
	store *config.RecallStore,
	policy *recall.Policy,
	overrides overrideBackend,
	reg *recall.Registry,
	scheduler *recall.Scheduler,
) *recall.Service {
	return recall.NewService(store, policy, overrides.store, reg, scheduler)
}

func newRouter(cfg *config.Config, b *bus.MessageBus, svc *recall.Service) *command.Router {
	return command.NewRouter(b, svc, cfg.Gateway.Echo)
}

func newAnnouncer(cfg *config.Config, b *bus.MessageBus, policy *recall.Policy, overrides overrideBackend, store *config.RecallStore) *announce.Service {
	a := announce.NewService(cfg.AnnouncePath())
	a.SetOnJob(announce.Publisher(b, policy, overrides.store, store))
	return a
}

func newHeartbeat(cfg *config.Config, store *config.RecallStore, hist *history.Store, announcer *announce.Service) *heartbeat.Service {
	tasks := []heartbeat.Task{
		heartbeat.ReloadTask("recall-settings", store),
		heartbeat.ReloadTask("announcements", announcer),
	}
	if days := cfg.Storage.HistoryDays; days > 0 {
		tasks = append(tasks, heartbeat.PruneTask(hist, time.Duration(days)*24*time.Hour))
	}
	return heartbeat.NewService(time.Duration(cfg.Gateway.HeartbeatSeconds)*time.Second, tasks...)
}

func newAPIServer(cfg *config.Config, b *bus.MessageBus, svc *recall.Service, hist *history.Store, announcer *announce.Service) *api.Server {
	return api.NewServer(cfg.Gateway, api.Deps{
		Recall:   svc,
		History:  hist,
		Announce: announcer,
		Bus:      b,
	})
}
