package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/killallgit/grapher/pkg/config"
	"github.com/killallgit/grapher/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "grapher",
	Short: "Ask questions about an indexed codebase",
	Long: `grapher sends questions to a code graph query service and streams the
answer, with the agent's progress, to the terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd.Root()); err != nil {
			return err
		}
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./.grapher/settings.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	rootCmd.PersistentFlags().String("api-url", "", "base URL of the query service")
	rootCmd.PersistentFlags().StringP("project", "p", "", "project to ask about")
}

// flagKeys maps settings keys to the persistent flags that override them
var flagKeys = map[string]string{
	"logging.level": "log-level",
	"api.base_url":  "api-url",
	"project":       "project",
}

func bindFlags(cmd *cobra.Command) error {
	var errs []error
	for key, name := range flagKeys {
		if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(name)); err != nil {
			errs = append(errs, fmt.Errorf("failed to bind --%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func initConfig() error {
	if _, err := config.Load(cfgFile); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Init(); err != nil {
		return err
	}
	logger.Debug("Using config file: %s", viper.ConfigFileUsed())
	return nil
}
