package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag of cmd and its children to its default, and
// clears their contexts, since the command tree is shared between executions
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	// cobra only propagates the execution context to commands whose context is
	// unset, so drop the one left over from the previous execution
	cmd.SetContext(nil)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// executeCommand is a helper to run a cobra command and capture its output
func executeCommand(args ...string) (string, string, error) {
	// Redirect log output for capture
	var out, errOut bytes.Buffer
	log.SetOutput(&errOut)
	defer log.SetOutput(os.Stderr)

	resetFlags(rootCmd)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)

	return out.String(), errOut.String(), err
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 7), uint8(y * 5), 90, 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// run executes args against the config in dir and fails the test on error
func run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	args = append(args, "--config", filepath.Join(dir, "demarca.yaml"))
	out, errOut, err := executeCommand(args...)
	require.NoError(t, err, "output: %s\nlog: %s", out, errOut)
	return out
}

func TestInit(t *testing.T) {
	dir := t.TempDir()

	out := run(t, dir, "init", "streets", "--classes", "car,person")
	assert.Contains(t, out, "Configuration file created")
	assert.Contains(t, out, `Project "streets" created (task detect, 2 classes)`)
	assert.FileExists(t, filepath.Join(dir, "demarca.yaml"))
	assert.FileExists(t, filepath.Join(dir, "demarca.db"))
	assert.DirExists(t, filepath.Join(dir, "storage", "streets"))

	t.Run("existing config is kept", func(t *testing.T) {
		out := run(t, dir, "init", "ships", "--task", "obb", "--angle-unit", "degrees")
		assert.Contains(t, out, "Configuration file already exists")
		assert.Contains(t, out, `Project "ships" created (task obb, 0 classes)`)
	})

	t.Run("invalid task", func(t *testing.T) {
		_, _, err := executeCommand("init", "bad", "--task", "nope", "--config", filepath.Join(dir, "demarca.yaml"))
		assert.Error(t, err)
	})

	t.Run("duplicate project", func(t *testing.T) {
		_, _, err := executeCommand("init", "streets", "--config", filepath.Join(dir, "demarca.yaml"))
		assert.Error(t, err)
	})
}

func TestWorkflow(t *testing.T) {
	dir := t.TempDir()
	run(t, dir, "init", "streets", "--classes", "car,person")

	writePNG(t, filepath.Join(dir, "src", "a.png"), 40, 20)
	writePNG(t, filepath.Join(dir, "src", "b.png"), 20, 40)
	writeFile(t, filepath.Join(dir, "src", "notes.txt"), "not an image")

	out := run(t, dir, "images", "add", filepath.Join(dir, "src"))
	assert.Contains(t, out, "imported: 2, skipped: 0")

	out = run(t, dir, "images", "add", filepath.Join(dir, "src", "a.png"))
	assert.Contains(t, out, "imported: 0, skipped: 1")

	out = run(t, dir, "images", "list")
	assert.Contains(t, out, "a.png")
	assert.Contains(t, out, "40x20")
	assert.Contains(t, out, "pending")

	out = run(t, dir, "classes", "add", "bike", "truck")
	assert.Contains(t, out, "2\tbike")
	assert.Contains(t, out, "3\ttruck")

	writeFile(t, filepath.Join(dir, "labels", "a.txt"), "0 0.5 0.5 0.5 0.5\n1 0.1 0.1 0.1 0.1\n")
	out = run(t, dir, "import", "yolo", filepath.Join(dir, "labels"))
	assert.Contains(t, out, "imported: 1, skipped: 0")

	out = run(t, dir, "classes", "list")
	assert.Contains(t, out, "ANNOTATIONS")
	assert.Contains(t, out, "bike")

	out = run(t, dir, "export", "yolo", filepath.Join(dir, "out"))
	assert.Contains(t, out, "exported: 1")
	assert.FileExists(t, filepath.Join(dir, "out", "classes.txt"))
	assert.FileExists(t, filepath.Join(dir, "out", "a.txt"))

	out = run(t, dir, "export", "coco", filepath.Join(dir, "coco.json"))
	assert.Contains(t, out, "exported:")
	assert.FileExists(t, filepath.Join(dir, "coco.json"))

	out = run(t, dir, "report")
	assert.Contains(t, out, "# streets")
	assert.Contains(t, out, "| 0 | car |")

	out = run(t, dir, "report", "--html", "-o", filepath.Join(dir, "report.html"))
	assert.Contains(t, out, "report written to")
	html, err := os.ReadFile(filepath.Join(dir, "report.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "<h1>streets</h1>")

	// the car box covers the image center, the person box does not
	out = run(t, dir, "batch", "relabel", "--point", "20,10", "--from", "car", "--to", "truck")
	assert.Contains(t, out, "annotations modified: 1")

	out = run(t, dir, "batch", "delete", "--point", "20,10", "--point", "4,2", "--classes", "truck,person", "--start", "0", "--end", "0")
	assert.Contains(t, out, "annotations modified: 2")

	out = run(t, dir, "images", "list")
	assert.NotContains(t, out, "annotated")

	out = run(t, dir, "query", "select count(*) from annotations")
	assert.Equal(t, "0\n", out)

	out = run(t, dir, "classes", "rm", "person")
	assert.Contains(t, out, "3 classes left")

	out = run(t, dir, "images", "verify")
	assert.Contains(t, out, "verified: 2, skipped: 0")

	out = run(t, dir, "images", "thumbnails", "-j", "2")
	assert.Contains(t, out, "generated: 2, skipped: 0")
}

func TestBatch_InvalidPoint(t *testing.T) {
	dir := t.TempDir()
	run(t, dir, "init", "streets", "--classes", "car")

	_, _, err := executeCommand("batch", "delete", "--point", "12", "--classes", "car", "--config", filepath.Join(dir, "demarca.yaml"))
	assert.Error(t, err)

	_, _, err = executeCommand("batch", "delete", "--point", "1,1", "--classes", "boat", "--config", filepath.Join(dir, "demarca.yaml"))
	assert.Error(t, err)
}

func TestQuery_ListsProjects(t *testing.T) {
	dir := t.TempDir()
	run(t, dir, "init", "streets")

	out := run(t, dir, "query")
	assert.Contains(t, out, "name\ttask\timages\tannotations")
	assert.Contains(t, out, "streets\tdetect\t0\t0")
}

func TestMigrate(t *testing.T) {
	dir := t.TempDir()
	run(t, dir, "init", "streets")

	out := run(t, dir, "migrate", "version")
	assert.Contains(t, out, "(clean)")

	_, _, err := executeCommand("migrate", "down", "--config", filepath.Join(dir, "demarca.yaml"))
	assert.Error(t, err, "down requires --yes")

	out = run(t, dir, "migrate", "down", "--yes")
	assert.Contains(t, out, "schema dropped")

	out = run(t, dir, "migrate", "up")
	assert.Contains(t, out, "(clean)")
}

func TestProjects(t *testing.T) {
	dir := t.TempDir()
	run(t, dir, "init", "streets", "--classes", "car,person")
	run(t, dir, "init", "ships", "--task", "obb")

	out := run(t, dir, "projects", "list")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "streets")
	assert.Contains(t, out, "ships")

	_, _, err := executeCommand("projects", "rm", "ships", "--config", filepath.Join(dir, "demarca.yaml"))
	assert.Error(t, err, "rm requires --yes")

	out = run(t, dir, "projects", "rm", "ships", "--yes")
	assert.Contains(t, out, "deleted project ships")
	assert.NoDirExists(t, filepath.Join(dir, "storage", "ships"))

	out = run(t, dir, "projects", "list")
	assert.NotContains(t, out, "ships")
}
