// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/internal/config"
	"github.com/xkilldash9x/specter/internal/observability"
	"github.com/xkilldash9x/specter/internal/service"
)

// app carries the state shared by the subcommands of one root command.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	factory service.ComponentFactory
}

// NewRootCommand builds a fresh command tree wired to the production factory.
func NewRootCommand() *cobra.Command {
	return newRootCommand(service.NewComponentFactory(service.Options{Migrate: true}))
}

func newRootCommand(factory service.ComponentFactory) *cobra.Command {
	a := &app{v: viper.New(), factory: factory}

	rootCmd := &cobra.Command{
		Use:           "specter",
		Short:         "Specter runs resumable OSINT investigations one step at a time.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initializeConfig(cmd); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "specter"})
				return err
			}
			observability.InitializeLogger(a.cfg.Logger())
			observability.GetLogger().Debug("Starting specter", zap.String("version", Version))
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.specter/config.yaml)")
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL URL; empty or \"memory\" keeps state in process")

	rootCmd.AddCommand(
		a.newServeCmd(),
		a.newCreateCmd(),
		a.newRunCmd(),
		a.newTickCmd(),
		a.newRegenerateCmd(),
		a.newEventsCmd(),
		a.newMigrateCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree under ctx.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file, environment and flags into a.cfg.
func (a *app) initializeConfig(cmd *cobra.Command) error {
	v := a.v
	config.SetDefaults(v)

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".specter"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SPECTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if f := cmd.Flags().Lookup("database-url"); f != nil {
		if err := v.BindPFlag("database.url", f); err != nil {
			return err
		}
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// withService builds the components for one command and tears them down after.
func (a *app) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service, c *service.Components) error) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	components, err := a.factory.Create(ctx, a.cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()

	return fn(ctx, service.FromComponents(components), components)
}
