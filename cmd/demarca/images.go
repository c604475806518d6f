package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lewtec/demarca/internal/domain"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Manage the images of a project",
}

var imagesAddCmd = &cobra.Command{
	Use:   "add <file|folder>...",
	Short: "Import image files into the project storage",
	Long: `Copies image files into the project storage. Folders are scanned one level
deep for supported images (jpg, jpeg, png, bmp, tif, tiff, webp). Files already in
the project, by content, are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, project, err := openProject(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		paths := make([]string, 0, len(args))
		for _, arg := range args {
			p, err := absPath(arg)
			if err != nil {
				return err
			}
			paths = append(paths, p)
		}
		res, imported, err := app.ImageImporter(project).Import(cmd.Context(), paths)
		if err != nil {
			return err
		}
		printResult(cmd, "imported", res.Imported, res.Skipped, res.Messages)

		if thumbnails, _ := cmd.Flags().GetBool("thumbnails"); thumbnails && len(imported) > 0 {
			t, err := app.Thumbnails(cmd.Context(), project, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "thumbnails: %d, failed: %d\n", t.Generated, t.Failed)
		}
		return nil
	},
}

var imagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the images of the project in import order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, project, err := openProject(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		images, err := app.Store.ListImages(cmd.Context(), project.ID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tID\tFILENAME\tSIZE\tSTATUS")
		for i, img := range images {
			fmt.Fprintf(w, "%d\t%d\t%s\t%dx%d\t%s\n", i, img.ID, img.Filename, img.Width, img.Height, img.Status)
		}
		return w.Flush()
	},
}

var imagesRmCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Remove images with their annotations and stored files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, project, err := openProject(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		var (
			removed  int
			messages []string
		)
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				messages = append(messages, fmt.Sprintf("%s: not an image id", arg))
				continue
			}
			img, err := app.Store.Images.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if img == nil || img.ProjectID != project.ID {
				messages = append(messages, fmt.Sprintf("%d: %v", id, domain.ErrNotFound))
				continue
			}
			if err := app.RemoveImage(cmd.Context(), project, img); err != nil {
				messages = append(messages, fmt.Sprintf("%d: %v", id, err))
				continue
			}
			removed++
		}
		printResult(cmd, "removed", removed, len(messages), messages)
		return nil
	},
}

var imagesVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the stored files against their recorded hashes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, project, err := openProject(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		images, err := app.Store.ListImages(cmd.Context(), project.ID)
		if err != nil {
			return err
		}
		var messages []string
		for _, img := range images {
			if err := app.VerifyImage(img); err != nil {
				messages = append(messages, err.Error())
			}
		}
		printResult(cmd, "verified", len(images)-len(messages), len(messages), messages)
		return nil
	},
}

var thumbnailsCmd = &cobra.Command{
	Use:   "thumbnails",
	Short: "Generate the thumbnails of every project image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, project, err := openProject(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if jobs, _ := cmd.Flags().GetInt("jobs"); jobs > 0 {
			app.Config.Thumbnails.Jobs = jobs
		}
		res, err := app.Thumbnails(cmd.Context(), project, nil)
		if err != nil {
			return err
		}
		printResult(cmd, "generated", int(res.Generated), int(res.Failed), nil)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(imagesCmd)
	imagesCmd.AddCommand(imagesAddCmd, imagesListCmd, imagesRmCmd, imagesVerifyCmd, thumbnailsCmd)

	imagesAddCmd.Flags().Bool("thumbnails", false, "Generate thumbnails after importing")
	thumbnailsCmd.Flags().IntP("jobs", "j", 0, "Parallel thumbnail workers (defaults to the config)")
}
