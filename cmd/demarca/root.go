package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v6/osfs"
	"github.com/spf13/cobra"

	"github.com/lewtec/demarca/annotation"
	"github.com/lewtec/demarca/internal/domain"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "demarca",
	Short: "Annotate images for object detection datasets",
	Long: strings.TrimSpace(`
Manage annotation projects: import images and labels in YOLO, COCO and Pascal VOC,
edit classes, run region batch operations and export training datasets.
    `),
	SilenceUsage: true,
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "demarca.yaml", "Config file")
	rootCmd.PersistentFlags().StringP("project", "p", "", "Project name (defaults to the configured project)")
}

// absPath resolves p against the working directory, since the filesystem is
// rooted at /
func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	return filepath.Abs(p)
}

// loadConfig reads the config file, falling back to the defaults when it does
// not exist. Relative database and storage paths are resolved against the
// directory of the config file.
func loadConfig(cmd *cobra.Command) (*annotation.Config, string, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, "", err
	}
	configFile, err = absPath(configFile)
	if err != nil {
		return nil, "", err
	}
	config := annotation.DefaultConfig()
	if _, err := os.Stat(configFile); err == nil {
		config, err = annotation.LoadConfig(configFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, "", err
	}
	base := filepath.Dir(configFile)
	if config.Database != ":memory:" && !filepath.IsAbs(config.Database) {
		config.Database = filepath.Join(base, config.Database)
	}
	if !filepath.IsAbs(config.Storage) {
		config.Storage = filepath.Join(base, config.Storage)
	}
	return config, configFile, nil
}

func openApp(cmd *cobra.Command) (*annotation.App, error) {
	config, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	app, err := annotation.NewApp(config, osfs.New("/"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return app, nil
}

// openProject opens the app and the project selected by --project
func openProject(cmd *cobra.Command) (*annotation.App, *domain.Project, error) {
	app, err := openApp(cmd)
	if err != nil {
		return nil, nil, err
	}
	name, _ := cmd.Flags().GetString("project")
	project, err := app.Project(cmd.Context(), name)
	if err != nil {
		app.Close()
		return nil, nil, err
	}
	return app, project, nil
}

// printResult prints the success/skipped pair of a batch command and the
// reason of every skipped item
func printResult(cmd *cobra.Command, verb string, done, skipped int, messages []string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d, skipped: %d\n", verb, done, skipped)
	for _, m := range messages {
		fmt.Fprintf(out, "  - %s\n", m)
	}
}
