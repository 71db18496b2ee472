package main

import (
	"context"

	"pricewise-backend/cmd/pricewise-cli/commands"
	"pricewise-backend/pkg/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "pricewise-cli")
	commands.ExecuteContext(context.Background())
}
