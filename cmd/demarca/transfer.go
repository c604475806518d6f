package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lewtec/demarca/annotation"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import annotations in YOLO, COCO or Pascal VOC format",
	Long: `Imports label files into the project. Labels are matched to project images by
path, file name or file name without extension. Images that already have
annotations are skipped unless --overwrite is given. With --chain, label files
without a matching project image import the image file next to them first.`,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export annotations in YOLO, COCO or Pascal VOC format",
}

type importFunc func(im *annotation.Importer, ctx context.Context, target string) (annotation.Result, error)

func importCommand(use, short string, run importFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, project, err := openProject(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			target, err := absPath(args[0])
			if err != nil {
				return err
			}
			importer := app.Importer(project)
			if cmd.Flags().Changed("overwrite") {
				importer.Overwrite, _ = cmd.Flags().GetBool("overwrite")
			}
			if chain, _ := cmd.Flags().GetBool("chain"); chain {
				importer.Chain(app.ImageImporter(project))
			}
			res, err := run(importer, cmd.Context(), target)
			if err != nil {
				return err
			}
			printResult(cmd, "imported", res.Imported, res.Skipped, res.Messages)
			fmt.Fprintf(cmd.OutOrStdout(), "annotations: %d, dropped: %d\n", res.Annotations, res.Dropped)
			return nil
		},
	}
}

type exportFunc func(ex *annotation.Exporter, ctx context.Context, target string) (annotation.ExportResult, error)

func exportCommand(use, short string, run exportFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, project, err := openProject(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			target, err := absPath(args[0])
			if err != nil {
				return err
			}
			res, err := run(app.Exporter(project), cmd.Context(), target)
			if err != nil {
				return err
			}
			printResult(cmd, "exported", res.Exported, res.Skipped, res.Messages)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(importCmd, exportCmd)

	importCmd.PersistentFlags().Bool("overwrite", false, "Replace the annotations of already annotated images")
	importCmd.PersistentFlags().Bool("chain", false, "Import missing images found next to the label files")
	importCmd.AddCommand(
		importCommand("yolo <dir>", "Import YOLO label files (and classes.txt) from a folder", (*annotation.Importer).ImportYOLO),
		importCommand("coco <file>", "Import a COCO instances JSON file", (*annotation.Importer).ImportCOCO),
		importCommand("voc <dir>", "Import Pascal VOC XML files from a folder", (*annotation.Importer).ImportVOC),
	)

	exportCmd.AddCommand(
		exportCommand("yolo <dir>", "Write classes.txt and one YOLO label file per annotated image", (*annotation.Exporter).ExportYOLO),
		exportCommand("coco <file>", "Write a COCO instances JSON file", (*annotation.Exporter).ExportCOCO),
		exportCommand("voc <dir>", "Write one Pascal VOC XML file per annotated image", (*annotation.Exporter).ExportVOC),
		exportCommand("dataset <dir>", "Write a train/val/test YOLO dataset with data.yaml", (*annotation.Exporter).ExportDataset),
	)
}
