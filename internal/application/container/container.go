// Package container wires Yggdrasil's singleton services: persistence,
// the Gateway hub, the Timing Engine, and the controller auth issuer.
package container

import (
	"github.com/jwhector/yggdrasil/internal/domain/entities/show"
	"github.com/jwhector/yggdrasil/internal/infrastructure/auth"
	"github.com/jwhector/yggdrasil/internal/infrastructure/messaging"
	"github.com/jwhector/yggdrasil/internal/infrastructure/observability/logging"
	"github.com/jwhector/yggdrasil/internal/infrastructure/persistence/database"
	"github.com/jwhector/yggdrasil/internal/infrastructure/persistence/store"
	"github.com/jwhector/yggdrasil/internal/infrastructure/timing"
	"github.com/jwhector/yggdrasil/pkg/config"
)

// Container holds every singleton service the show's process needs.
type Container struct {
	Logger      *logging.ChanneledLogger
	DB          *database.DB
	Store       *store.Store
	Hub         *messaging.Hub
	Timing      *timing.Engine
	TokenIssuer *auth.TokenIssuer
}

// NewContainer opens persistence, restores or creates the show's state,
// and wires the Gateway hub to the Timing Engine and the store.
func NewContainer(logger *logging.ChanneledLogger) (*Container, error) {
	db, err := database.NewConnectionWithLogger(config.PersistenceDriver, config.PersistenceDSN, logger)
	if err != nil {
		return nil, err
	}

	st, err := store.New(db, logger)
	if err != nil {
		return nil, err
	}

	initial, err := st.LoadState(config.ShowID)
	if err != nil {
		return nil, err
	}
	if initial == nil {
		initial = show.CreateInitialState(config.BuildShowConfig(), config.ShowID)
	}

	hub := messaging.New(initial, st, logger)

	engine := timing.New(hub, logger)
	hub.SetTimingObserver(engine)

	secret := []byte(config.JWTSecret)
	if len(secret) == 0 {
		secret = []byte(config.OperatorSecret)
	}
	issuer := auth.NewTokenIssuer(secret, config.ControllerTokenTTL)

	return &Container{
		Logger:      logger,
		DB:          db,
		Store:       st,
		Hub:         hub,
		Timing:      engine,
		TokenIssuer: issuer,
	}, nil
}

// Run starts the Gateway hub's actor loop; call it in its own goroutine.
func (c *Container) Run() {
	c.Hub.Run()
}

// Shutdown releases every resource the container opened.
func (c *Container) Shutdown() {
	c.Timing.Stop()
	_ = c.Logger.Close()
	_ = c.DB.Close()
}
