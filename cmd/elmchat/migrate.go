package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elmchat/elm-chat/internal/cassandra"
	"github.com/elmchat/elm-chat/internal/config"
	pkglog "github.com/elmchat/elm-chat/pkg/log"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the Cassandra keyspace, tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		pkglog.Init(pkglog.Config{
			Level:       cfg.Log.Level,
			Pretty:      cfg.Log.Pretty,
			ServiceName: serviceName,
		})
		ctx := pkglog.WithLogger(cmd.Context(), pkglog.L())

		return cassandra.Migrate(ctx, cfg.Cassandra)
	},
}
