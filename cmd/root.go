// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webarchiver/internal/config"
	"github.com/xkilldash9x/webarchiver/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// envPrefix prefixes every environment override, e.g. WEBARCHIVER_NETWORK_TIMEOUT.
const envPrefix = "WEBARCHIVER"

// NewRootCommand builds a fresh command tree. Each call gets its own viper
// instance so flags and config never leak between executions.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)

	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "webarchiver",
		Short:         "webarchiver saves a web page and everything it loads into a single archive.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(v, cfgFile); err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger())
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger())
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting webarchiver", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("logger.level", rootCmd.PersistentFlags().Lookup("log-level"))
	rootCmd.SetVersionTemplate(`{{printf "webarchiver version %s\n" .Version}}`)

	rootCmd.AddCommand(newArchiveCmd(v))
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the command tree with ctx and flushes the logger.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			observability.GetLogger().Info("Command aborted.")
		} else {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	observability.Sync()
	return err
}

// initializeConfig points v at the config file and environment. A missing
// default config file is not an error.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// getConfigFromContext returns the configuration stored by the root command.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in context")
	}
	return cfg, nil
}
