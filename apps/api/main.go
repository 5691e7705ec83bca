package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/observability"
	"github.com/smallbiznis/staybook/internal/server"
	"github.com/smallbiznis/staybook/pkg/db"
	"go.uber.org/fx"
)

// The API binary serves HTTP only; run apps/scheduler next to it for the
// booking sweeper. Migrations are applied by cmd/staybook.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		server.Module,
	)
	app.Run()
}

// RegisterSnowflake builds the id generator. STAYBOOK_NODE_ID must differ
// between instances that write to the same database.
func RegisterSnowflake() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := strings.TrimSpace(os.Getenv("STAYBOOK_NODE_ID")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse STAYBOOK_NODE_ID: %w", err)
		}
		nodeID = parsed
	}
	return snowflake.NewNode(nodeID)
}
