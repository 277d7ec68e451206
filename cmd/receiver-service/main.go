package main

import (
	"context"

	"pdlbus/internal/config"
	"pdlbus/internal/logger"
	"pdlbus/pkg/bootstrap"
	"pdlbus/pkg/logging"
)

const serviceName = "receiver-service"

func main() {
	cmd := bootstrap.Command(serviceName,
		"Product notification receiver",
		"Receiver Service follows a bus subject from a durable cursor and hands new product notifications to listeners",
		func(cfg *config.Config, log logger.Logger) bootstrap.Service {
			return NewApp(cfg, log)
		},
	)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		logging.NewEarlyLog().Error("%v", err)
	}
}
