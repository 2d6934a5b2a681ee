package cmd

import (
	"errors"
	"os"
	"os/signal"
	"strings"

	"github.com/killallgit/grapher/pkg/config"
	"github.com/killallgit/grapher/pkg/controllers"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question",
	Long: `Send one question to the query service and stream the answer.
Press Ctrl-C to stop the answer early; the partial answer is kept.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")

		app, err := NewApp(config.Get(), cmd.OutOrStdout(), sessionID)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		err = app.Ask(ctx, strings.Join(args, " "))
		if errors.Is(err, controllers.ErrNoProject) {
			return errors.New("no project selected: pass --project or set GRAPHER_PROJECT")
		}
		return err
	},
}

func init() {
	askCmd.Flags().StringP("session", "s", "", "continue an existing session")
	rootCmd.AddCommand(askCmd)
}
