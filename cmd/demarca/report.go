package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lewtec/demarca/annotation"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize the project as markdown or HTML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, project, err := openProject(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		markdown, err := annotation.BuildReport(cmd.Context(), app.Store, project)
		if err != nil {
			return err
		}
		content := []byte(markdown)
		if html, _ := cmd.Flags().GetBool("html"); html {
			content = annotation.RenderReport(markdown)
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			_, err := cmd.OutOrStdout().Write(content)
			return err
		}
		if err := os.WriteFile(output, content, 0644); err != nil {
			return fmt.Errorf("while writing report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().Bool("html", false, "Render the report as HTML")
	reportCmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
}
