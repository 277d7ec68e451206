package main

import (
	"context"

	"pdlbus/internal/config"
	"pdlbus/internal/logger"
	"pdlbus/pkg/bootstrap"
	"pdlbus/pkg/logging"
)

const serviceName = "bridge-service"

func main() {
	cmd := bootstrap.Command(serviceName,
		"Bus to WebSocket forwarding bridge",
		"Bridge Service streams a bus subject to WebSocket clients, one bus connection per session",
		func(cfg *config.Config, log logger.Logger) bootstrap.Service {
			return NewApp(cfg, log)
		},
	)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		logging.NewEarlyLog().Error("%v", err)
	}
}
