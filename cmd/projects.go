package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/killallgit/grapher/pkg/client"
	"github.com/killallgit/grapher/pkg/config"
	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List available projects",
	Long:  `List the projects the query service has indexed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		c := client.NewClientWithTimeout(cfg.API.BaseURL, cfg.API.HeaderTimeout)
		return listProjects(cmd.Context(), c, cfg.Project, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd)
}

// listProjects prints one project per line, marking current with *
func listProjects(ctx context.Context, lister client.ProjectLister, current string, out io.Writer) error {
	projects, err := lister.ListProjects(ctx)
	if err != nil {
		return err
	}

	if len(projects) == 0 {
		fmt.Fprintln(out, "No projects found")
		return nil
	}
	for _, p := range projects {
		marker := " "
		if p == current {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, p)
	}
	return nil
}
