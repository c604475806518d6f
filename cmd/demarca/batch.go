package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lewtec/demarca/annotation"
	"github.com/lewtec/demarca/internal/batch"
	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/geometry"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Delete or relabel the annotations covering points over a range of images",
	Long: `Applies an operation to every annotation that contains at least one of the
given image-space points, on the images from --start to --end (inclusive, in
import order, as shown by 'demarca images list').

Example:
  demarca batch delete --point 120,80 --point 300,200 --classes car --start 0 --end 49
  demarca batch relabel --point 120,80 --from car,truck --to vehicle`,
}

// parsePoint reads "x,y"
func parsePoint(s string) (geometry.Point, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return geometry.Point{}, fmt.Errorf("point %q is not x,y: %w", s, domain.ErrMalformedInput)
	}
	x, errX := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if errX != nil || errY != nil {
		return geometry.Point{}, fmt.Errorf("point %q is not x,y: %w", s, domain.ErrMalformedInput)
	}
	return geometry.Pt(x, y), nil
}

func batchRequest(cmd *cobra.Command, project *domain.Project, op batch.Op) (batch.Request, error) {
	raw, _ := cmd.Flags().GetStringArray("point")
	points := make([]geometry.Point, 0, len(raw))
	for _, r := range raw {
		p, err := parsePoint(r)
		if err != nil {
			return batch.Request{}, err
		}
		points = append(points, p)
	}
	start, _ := cmd.Flags().GetInt("start")
	end, _ := cmd.Flags().GetInt("end")
	if end < 0 {
		end = math.MaxInt
	}
	return batch.Request{ProjectID: project.ID, Points: points, Start: start, End: end, Op: op}, nil
}

func runBatch(cmd *cobra.Command, app *annotation.App, req batch.Request) error {
	processor := app.Batch()
	res, err := processor.Run(cmd.Context(), req)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "images: %d, failed: %d\n", res.ImagesProcessed-res.Failed, res.Failed)
	fmt.Fprintf(out, "annotations modified: %d\n", res.AnnotationsModified)
	for _, m := range res.Messages {
		fmt.Fprintf(out, "  - %s\n", m)
	}
	return nil
}

var batchDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete covered annotations of the given classes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, project, err := openProject(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		refs, _ := cmd.Flags().GetStringSlice("classes")
		classes, err := annotation.ResolveClasses(project.Classes, refs)
		if err != nil {
			return err
		}
		req, err := batchRequest(cmd, project, batch.Delete{Classes: classes})
		if err != nil {
			return err
		}
		return runBatch(cmd, app, req)
	},
}

var batchRelabelCmd = &cobra.Command{
	Use:   "relabel",
	Short: "Move covered annotations of the source classes to a target class",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, project, err := openProject(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		refs, _ := cmd.Flags().GetStringSlice("from")
		source, err := annotation.ResolveClasses(project.Classes, refs)
		if err != nil {
			return err
		}
		to, _ := cmd.Flags().GetString("to")
		target, err := annotation.ResolveClasses(project.Classes, []string{to})
		if err != nil {
			return err
		}
		req, err := batchRequest(cmd, project, batch.Relabel{
			Source:     source,
			Target:     target[0],
			TargetName: project.Classes.NameOf(target[0]),
		})
		if err != nil {
			return err
		}
		return runBatch(cmd, app, req)
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.AddCommand(batchDeleteCmd, batchRelabelCmd)

	batchCmd.PersistentFlags().StringArray("point", nil, "Image-space point x,y (repeatable)")
	batchCmd.PersistentFlags().Int("start", 0, "First image index")
	batchCmd.PersistentFlags().Int("end", -1, "Last image index, inclusive (-1 for the last image)")

	batchDeleteCmd.Flags().StringSlice("classes", nil, "Classes to delete, by name or id")
	batchDeleteCmd.MarkFlagRequired("classes")
	batchRelabelCmd.Flags().StringSlice("from", nil, "Source classes, by name or id")
	batchRelabelCmd.Flags().String("to", "", "Target class, by name or id")
	batchRelabelCmd.MarkFlagRequired("from")
	batchRelabelCmd.MarkFlagRequired("to")
}
