package main

import (
	"fmt"
	"os"

	"github.com/go-git/go-billy/v6/osfs"
	"github.com/spf13/cobra"

	"github.com/lewtec/demarca/annotation"
	"github.com/lewtec/demarca/internal/domain"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init <project>",
	Short: "Initialize a new annotation project",
	Long: `Initialize a new annotation project by creating:
- A configuration file (demarca.yaml) selecting the project, unless it exists
- The SQLite database with its schema
- The project record and its storage directory

Example:
  demarca init streets --task detect --classes car,person,bike
  demarca init ships --task obb --angle-unit degrees`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		taskName, _ := cmd.Flags().GetString("task")
		unitName, _ := cmd.Flags().GetString("angle-unit")
		description, _ := cmd.Flags().GetString("description")
		classes, _ := cmd.Flags().GetStringSlice("classes")

		task, err := domain.ParseTask(taskName)
		if err != nil {
			return err
		}
		unit, err := domain.ParseAngleUnit(unitName)
		if err != nil {
			return err
		}

		config, configFile, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			fresh := annotation.DefaultConfig()
			fresh.Project = name
			if err := annotation.WriteConfig(configFile, fresh); err != nil {
				return fmt.Errorf("failed to create config file: %w", err)
			}
			fmt.Fprintf(out, "Configuration file created: %s\n", configFile)
		} else {
			fmt.Fprintf(out, "Configuration file already exists: %s\n", configFile)
		}

		app, err := annotation.NewApp(config, osfs.New("/"))
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		defer app.Close()

		project, err := app.CreateProject(cmd.Context(), name, description, task, unit, classes)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Project %q created (task %s, %d classes)\n", project.Name, project.Task, len(project.Classes))
		fmt.Fprintf(out, "  Database: %s\n", config.Database)
		fmt.Fprintf(out, "  Storage:  %s\n", project.StoragePath)
		fmt.Fprintln(out, "\nNext steps:")
		fmt.Fprintf(out, "  demarca images add -p %s <images...>\n", project.Name)
		fmt.Fprintf(out, "  demarca import yolo -p %s <labels dir>\n", project.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringP("task", "t", "detect", "Task: detect, segment, pose, obb or classify")
	initCmd.Flags().String("angle-unit", "radians", "Angle unit of obb projects: radians or degrees")
	initCmd.Flags().StringP("description", "d", "", "Project description")
	initCmd.Flags().StringSlice("classes", nil, "Initial class names, comma separated")
}
