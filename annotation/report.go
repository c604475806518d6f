package annotation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/russross/blackfriday/v2"

	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/repository"
)

func stringOr(str, or string) string {
	if str != "" {
		return str
	}
	return or
}

// BuildReport summarizes a project as markdown
func BuildReport(ctx context.Context, store *repository.Store, project *domain.Project) (string, error) {
	total, err := store.Images.Count(ctx, project.ID)
	if err != nil {
		return "", fmt.Errorf("while counting images: %w", err)
	}
	annotated, err := store.Images.CountByStatus(ctx, project.ID, domain.StatusAnnotated)
	if err != nil {
		return "", fmt.Errorf("while counting annotated images: %w", err)
	}
	stats, err := store.Annotations.Stats(ctx, project.ID)
	if err != nil {
		return "", fmt.Errorf("while computing annotation stats: %w", err)
	}

	var markdownBuilder strings.Builder
	fmt.Fprintf(&markdownBuilder, "# %s\n\n", project.Name)
	fmt.Fprintf(&markdownBuilder, "> %s\n\n", strings.ReplaceAll(stringOr(project.Description, "(No description provided)"), "\n", "\n>"))
	fmt.Fprintf(&markdownBuilder, "- **Task**: %s\n", project.Task)
	if project.Task == domain.TaskOBB {
		fmt.Fprintf(&markdownBuilder, "- **Angle unit**: %s\n", project.AngleUnit)
	}
	fmt.Fprintf(&markdownBuilder, "- **Images**: %d\n", total)
	fmt.Fprintf(&markdownBuilder, "- **Annotated**: %d\n", annotated)
	fmt.Fprintf(&markdownBuilder, "- **Pending**: %d\n", total-annotated)
	fmt.Fprintf(&markdownBuilder, "- **Annotations**: %d\n\n", stats.TotalAnnotations)

	fmt.Fprintf(&markdownBuilder, "## Classes\n\n")
	if len(project.Classes) == 0 && len(stats.PerClass) == 0 {
		fmt.Fprintf(&markdownBuilder, "(No classes defined)\n")
		return markdownBuilder.String(), nil
	}
	fmt.Fprintf(&markdownBuilder, "| ID | Name | Color | Annotations |\n")
	fmt.Fprintf(&markdownBuilder, "|---:|------|-------|------------:|\n")

	ids := make([]int, 0, len(project.Classes))
	seen := map[int]bool{}
	for _, c := range project.Classes {
		ids = append(ids, c.ID)
		seen[c.ID] = true
	}
	for id := range stats.PerClass {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	for _, id := range ids {
		color := ""
		if c, ok := project.Classes.ByID(id); ok {
			color = c.Color.String()
		}
		fmt.Fprintf(&markdownBuilder, "| %d | %s | %s | %d |\n", id, project.Classes.NameOf(id), color, stats.PerClass[id])
	}
	return markdownBuilder.String(), nil
}

// RenderReport converts a markdown report to HTML
func RenderReport(markdown string) []byte {
	return blackfriday.Run([]byte(markdown))
}
