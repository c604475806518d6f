package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "Manage the classes of a project",
}

var classesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the project classes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, project, err := openProject(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		stats, err := app.Store.Annotations.Stats(cmd.Context(), project.ID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCOLOR\tANNOTATIONS")
		for _, c := range project.Classes {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", c.ID, c.Name, c.Color, stats.PerClass[c.ID])
		}
		return w.Flush()
	},
}

var classesAddCmd = &cobra.Command{
	Use:   "add <name>...",
	Short: "Append classes to the project",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, project, err := openProject(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		color, _ := cmd.Flags().GetString("color")
		for _, name := range args {
			def, err := app.AddClass(cmd.Context(), project, name, color)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", def.ID, def.Name, def.Color)
			if project, err = app.Project(cmd.Context(), project.Name); err != nil {
				return err
			}
		}
		return nil
	},
}

var classesRmCmd = &cobra.Command{
	Use:   "rm <name|id>",
	Short: "Delete a class with its annotations and renumber the rest",
	Long: `Deletes a class and every annotation of that class. The remaining classes are
renumbered 0..n-1 in order and their annotations remapped, all in one transaction.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, project, err := openProject(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		classes, deleted, err := app.DeleteClass(cmd.Context(), project, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted class %s with %d annotations, %d classes left\n", args[0], deleted, len(classes))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classesCmd)
	classesCmd.AddCommand(classesListCmd, classesAddCmd, classesRmCmd)

	classesAddCmd.Flags().String("color", "", "Class color as #RRGGBB (defaults to the palette)")
}
