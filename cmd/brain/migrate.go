package main

import (
	"fmt"

	"github.com/sandevgo/brain/internal/config"
	"github.com/sandevgo/brain/pkg/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Apply database migrations and exit",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		if err := config.LoadEnv(ctx, config.GetRuntimePath()); err != nil {
			return err
		}
		appCfg := config.NewAppConfig(ctx)

		db, err := openStorage(ctx, appCfg)
		if err != nil {
			return err
		}
		defer db.Close()

		v, err := db.Version(ctx)
		if err != nil {
			return err
		}
		log.FromCtx(ctx).Info().Str("dialect", string(db.Dialect())).Int64("version", v).Msg("database is up to date")
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
