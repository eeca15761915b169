package main

import (
	"context"
	"fmt"
	"log"

	"github.com/barolog/barolog/internal/auth"
	"github.com/barolog/barolog/internal/cloud"
	"github.com/barolog/barolog/internal/config"
	"github.com/barolog/barolog/internal/device"
	"github.com/barolog/barolog/internal/localstore"
	"github.com/barolog/barolog/internal/sensor"
	"github.com/barolog/barolog/internal/sync"
)

// app holds the resources a command works with. Fields are populated by
// openApp and the open* helpers; Close releases whatever was opened.
type app struct {
	logs     *config.LogSink
	db       *localstore.DB
	store    *localstore.Store
	session  *auth.SessionFile
	identity *device.FileIdentity
	registry *device.Registry

	replica cloud.Replica
	engine  *sync.Engine

	closers []func()
}

// openApp opens the local store and loads the device registry.
func openApp(ctx context.Context) (*app, error) {
	a := &app{logs: cfg.OpenLog()}

	db, err := localstore.Open(ctx, cfg.Database)
	if err != nil {
		_ = a.logs.Close()
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	a.db = db
	a.store = localstore.NewStore(db, a.logger("store"))
	a.session = auth.NewSessionFile(cfg.Session)
	a.identity = device.NewFileIdentity(cfg.Device.Identity, cfg.Device.Name)

	a.registry = device.NewRegistry(a.store)
	a.registry.Refresh(ctx)

	return a, nil
}

func (a *app) logger(component string) *log.Logger {
	return a.logs.Logger(component)
}

// openSync opens the configured cloud replica and builds the sync engine.
func (a *app) openSync(ctx context.Context) error {
	if a.engine != nil {
		return nil
	}

	replica, err := cloud.Open(ctx, cfg.CloudConfig())
	if err != nil {
		return fmt.Errorf("failed to open %s replica: %w", cfg.Cloud.Backend, err)
	}
	a.replica = replica

	a.engine = sync.NewEngine(a.db, replica, a.session, sync.Config{
		BatchSize: cfg.Sync.BatchSize,
		Registry:  a.registry,
		Logger:    a.logger("sync"),
	})
	return nil
}

// openSource returns the configured sensor source.
func (a *app) openSource() (sensor.Source, error) {
	switch cfg.Sensor.Source {
	case "mqtt":
		m := cfg.Sensor.MQTT
		src, err := sensor.NewMQTT(sensor.MQTTOptions{
			BrokerURL: m.Broker,
			ClientID:  m.ClientID,
			Topic:     m.Topic,
			QoS:       byte(m.QoS),
			Username:  m.Username,
			Password:  m.Password,
			Logger:    a.logger("sensor"),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, src.Close)
		return src, nil
	default:
		return sensor.NewSimulated(cfg.Sensor.Seed), nil
	}
}

// currentUser reports the logged-in user id for the recorder.
func (a *app) currentUser() (string, bool) {
	user, ok := a.session.CurrentUser()
	return user.ID, ok
}

// Close waits for background syncs and releases resources.
func (a *app) Close() {
	if a.engine != nil {
		a.engine.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.replica != nil {
		if err := a.replica.Close(); err != nil {
			a.logger("cloud").Printf("Warning: failed to close replica: %v", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger("store").Printf("Warning: failed to close store: %v", err)
		}
	}
	_ = a.logs.Close()
}
