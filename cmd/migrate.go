package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/specter/internal/observability"
	"github.com/xkilldash9x/specter/internal/service"
	"github.com/xkilldash9x/specter/internal/store"
)

func (a *app) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbCfg := a.cfg.Database()
			if url := strings.TrimSpace(dbCfg.URL); url == "" || url == service.MemoryURL {
				return errors.New("migrate needs a PostgreSQL database.url")
			}
			ctx := cmd.Context()
			pool, err := service.NewPool(ctx, dbCfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			st, err := store.New(ctx, pool, observability.GetLogger())
			if err != nil {
				return err
			}
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}
