// Package startup prepares and runs the Yggdrasil process: logging,
// the service container, the Gateway actor loop, and the HTTP server,
// with a graceful shutdown on interrupt.
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwhector/yggdrasil/internal/application/container"
	"github.com/jwhector/yggdrasil/internal/infrastructure/observability/logging"
	"github.com/jwhector/yggdrasil/internal/presentation/http/server"
	"github.com/jwhector/yggdrasil/pkg/config"
)

// Initialize boots the show process and blocks until it shuts down.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	log.Println("\033[32m" + `
 __   _  ___  ___  ___  ___  ___  ____  ____  __
 \ \ / )/ __)/ __)(  _)/ __)/ __)(  _ \(  __)(  )
  \ V /( (_ \\__ \ ) _)\__ \\__ \ )(_) ) (_  /__\
   \_/  \___/(___/(___)(___/(___/(____/(____/(__)
` + "\033[0m" + `
  a live-performance coordinator
`)

	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	appContainer, err := container.NewContainer(logger)
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}

	go appContainer.Run()
	logger.Startup().Info("show actor started", "showId", config.ShowID)

	httpServer := server.New(config.Port, appContainer)

	elapsed := time.Since(start)
	logger.LogStartupPhase("boot", elapsed, true, nil)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	logger.Startup().Info("ready to serve requests", "port", config.Port)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Shutdown().Info("received signal, starting graceful shutdown", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop server gracefully: %w", err)
		}

		appContainer.Shutdown()
		logger.Shutdown().Info("shut down gracefully")
	}

	return nil
}

func setupLogging() {
	if os.Getenv("ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
}
