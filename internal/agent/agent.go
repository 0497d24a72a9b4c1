// Package agent assembles the upgrade daemon: the HAL, its upgrade
// dispatcher and the servers feeding it requests.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/mfrhal/internal/hal"
	"github.com/autopeer-io/mfrhal/internal/server"
	"github.com/autopeer-io/mfrhal/pkg/log"
	"github.com/autopeer-io/mfrhal/pkg/mfr"
)

// shutdownTimeout bounds the wait for running upgrades on exit.
const shutdownTimeout = time.Minute

type Agent struct {
	deviceID string
	device   *hal.Device

	// servers accept requests and own the broker connection. publishers
	// report progress over it.
	servers    *server.Manager
	publishers *server.Manager
}

func NewAgent(did string, device *hal.Device, servers, publishers *server.Manager) *Agent {
	return &Agent{
		deviceID:   did,
		device:     device,
		servers:    servers,
		publishers: publishers,
	}
}

// Device returns the HAL served by the agent.
func (a *Agent) Device() *hal.Device {
	return a.device
}

// Run initializes the HAL and serves until ctx is done or a server fails.
//
// Shutdown order: the HAL is terminated first, waiting for running
// upgrades, then the publishers flush their last events, then the servers
// stop and the broker connection is closed.
func (a *Agent) Run(ctx context.Context) error {
	log.Info("Starting mfr-upgraded", "deviceID", a.deviceID)

	if kind := a.device.Init(); kind != mfr.NoError {
		return fmt.Errorf("failed to initialize HAL: %w", kind)
	}

	serveCtx, stopServing := context.WithCancel(context.WithoutCancel(ctx))
	defer stopServing()
	publishCtx, stopPublishing := context.WithCancel(serveCtx)
	defer stopPublishing()

	serving := start(serveCtx, a.servers)
	publishing := start(publishCtx, a.publishers)

	var err error
	select {
	case <-ctx.Done():
		log.Info("Agent shutting down...")
	case err = <-serving:
		serving = nil
	case err = <-publishing:
		publishing = nil
	}

	a.shutdown()

	stopPublishing()
	if publishing != nil {
		err = firstError(err, <-publishing)
	}
	stopServing()
	if serving != nil {
		err = firstError(err, <-serving)
	}
	return err
}

func (a *Agent) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.device.Shutdown(ctx); err != nil {
		log.Error(err, "Upgrades still running at shutdown")
	}
}

func start(ctx context.Context, m *server.Manager) <-chan error {
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	return done
}

func firstError(err, next error) error {
	if err != nil {
		return err
	}
	return next
}
