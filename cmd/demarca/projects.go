package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lewtec/demarca/internal/domain"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List or delete the projects of the database",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		projects, err := app.Store.Projects.List(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTASK\tCLASSES\tIMAGES\tANNOTATED")
		for _, p := range projects {
			total, err := app.Store.Images.Count(cmd.Context(), p.ID)
			if err != nil {
				return err
			}
			annotated, err := app.Store.Images.CountByStatus(cmd.Context(), p.ID, domain.StatusAnnotated)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", p.Name, p.Task, len(p.Classes), total, annotated)
		}
		return w.Flush()
	},
}

var projectsRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Delete a project with its images, annotations and stored files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to delete project %s without --yes", args[0])
		}
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		project, err := app.Project(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := app.DeleteProject(cmd.Context(), project); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted project %s\n", project.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd)
	projectsCmd.AddCommand(projectsListCmd, projectsRmCmd)

	projectsRmCmd.Flags().Bool("yes", false, "Confirm the deletion")
}
