package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-chamados-sync/devserver"
	"github.com/jrsteele09/go-chamados-sync/internal/config"
	"github.com/jrsteele09/go-chamados-sync/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	errPanicRecovered = errors.New("panic recovered")
	restartDelay      = 1 * time.Second
)

func main() {
	if err := supervise(run); err != nil {
		log.Fatal().Err(err).Msg("Error running dev server")
	}
	log.Info().Msg("Dev server stopped")
}

// supervise restarts run after a recovered panic and returns any other error.
func supervise(run func() error) error {
	for {
		err := run()
		if !errors.Is(err, errPanicRecovered) {
			return err
		}
		log.Error().Err(err).Msg("Restarting dev server")
		time.Sleep(restartDelay)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errPanicRecovered
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	logger := logging.New(c, os.Stderr)
	displayAppname(c.GetAppName() + " dev")

	backend, err := devserver.New(
		devserver.WithLogger(logging.Component(logger, "devserver")),
		devserver.WithTokenTTL(c.GetDevTokenTTL()),
	)
	if err != nil {
		return err
	}
	if err := backend.Seed(c); err != nil {
		return err
	}
	defer backend.Close()

	servers := make([]*http.Server, 0, len(c.GetDevServerAddrs()))
	for _, addr := range c.GetDevServerAddrs() {
		server := &http.Server{Addr: addr, Handler: backend, ReadHeaderTimeout: 5 * time.Second}
		servers = append(servers, server)
		go listenAndServe(logger, server)
	}
	logger.Info().Str("login", c.GetDevLogin()).Msg("development account ready")

	waitForStopSignal()
	backend.Close()
	for _, server := range servers {
		if err := shutdown(server); err != nil {
			returnError = err
		}
	}
	return returnError
}

func listenAndServe(logger zerolog.Logger, server *http.Server) {
	logger.Info().Str("addr", server.Addr).Msg("Dev server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("addr", server.Addr).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
