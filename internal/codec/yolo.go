package codec

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/geometry"
)

// DecodeYOLO parses a YOLO label file for an image of width×height pixels.
// The task decides the line shape. Malformed lines are skipped and counted;
// only read failures are returned as errors.
func DecodeYOLO(r io.Reader, task domain.Task, width, height float64) ([]Object, int, error) {
	var (
		objects []Object
		skipped int
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		obj, ok := decodeYOLOLine(strings.Fields(line), task, width, height)
		if !ok {
			skipped++
			continue
		}
		objects = append(objects, obj)
	}
	if err := scanner.Err(); err != nil {
		return objects, skipped, fmt.Errorf("while reading yolo labels: %w", domain.ErrIOFailure)
	}
	return objects, skipped, nil
}

func decodeYOLOLine(fields []string, task domain.Task, width, height float64) (Object, bool) {
	if len(fields) == 0 {
		return Object{}, false
	}
	classID, ok := parseClassID(fields[0])
	if !ok {
		return Object{}, false
	}
	values, ok := parseFloats(fields[1:])
	if !ok {
		return Object{}, false
	}
	obj := Object{ClassIndex: classID, Type: task.AnnotationType()}

	switch task {
	case domain.TaskClassify:
		return obj, true

	case domain.TaskSegment:
		if len(values) < 6 || len(values)%2 != 0 {
			return Object{}, false
		}
		points := make([]geometry.Point, 0, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			points = append(points, geometry.Pt(values[i]*width, values[i+1]*height))
		}
		obj.Geometry.Points = points
		return obj, true

	case domain.TaskPose:
		if len(values) < 4 || (len(values)-4)%3 != 0 {
			return Object{}, false
		}
		if obj.Geometry.BBox, ok = denormalizeBox(values[:4], width, height); !ok {
			return Object{}, false
		}
		kps := values[4:]
		obj.Geometry.Keypoints = make([]domain.Keypoint, 0, len(kps)/3)
		for i := 0; i < len(kps); i += 3 {
			obj.Geometry.Keypoints = append(obj.Geometry.Keypoints, domain.Keypoint{
				X: kps[i] * width,
				Y: kps[i+1] * height,
				V: int(math.Round(kps[i+2])),
			})
		}
		return obj, true

	case domain.TaskOBB:
		if len(values) < 5 {
			return Object{}, false
		}
		if obj.Geometry.BBox, ok = denormalizeBox(values[:4], width, height); !ok {
			return Object{}, false
		}
		obj.Geometry.Angle = values[4]
		return obj, true

	default:
		if len(values) < 4 {
			return Object{}, false
		}
		if obj.Geometry.BBox, ok = denormalizeBox(values[:4], width, height); !ok {
			return Object{}, false
		}
		return obj, true
	}
}

// denormalizeBox rejects negative sizes
func denormalizeBox(v []float64, width, height float64) (geometry.Rect, bool) {
	cx, cy, w, h := v[0], v[1], v[2], v[3]
	if w < 0 || h < 0 {
		return geometry.Rect{}, false
	}
	return geometry.Rect{
		X:      (cx - w/2) * width,
		Y:      (cy - h/2) * height,
		Width:  w * width,
		Height: h * height,
	}, true
}

func parseClassID(s string) (int, bool) {
	if id, err := strconv.Atoi(s); err == nil {
		return id, id >= 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func parseFloats(fields []string) ([]float64, bool) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// EncodeYOLO writes one line per annotation, normalized by the image size
// with 6 decimals.
func EncodeYOLO(w io.Writer, annotations []*domain.Annotation, width, height float64) error {
	if width <= 0 || height <= 0 {
		return malformed("image size %vx%v", width, height)
	}
	bw := bufio.NewWriter(w)
	for _, a := range annotations {
		line := encodeYOLOLine(a, width, height)
		if line == "" {
			continue
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("while writing yolo labels: %w", domain.ErrIOFailure)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("while writing yolo labels: %w", domain.ErrIOFailure)
	}
	return nil
}

func encodeYOLOLine(a *domain.Annotation, width, height float64) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(a.ClassID))

	box := func(r geometry.Rect) {
		writeFloats(&sb, (r.X+r.Width/2)/width, (r.Y+r.Height/2)/height, r.Width/width, r.Height/height)
	}

	switch a.Type {
	case domain.TypeClassify:
	case domain.TypePolygon:
		if len(a.Geometry.Points) < 3 {
			return ""
		}
		for _, p := range a.Geometry.Points {
			writeFloats(&sb, p.X/width, p.Y/height)
		}
	case domain.TypeKeypoint:
		box(a.Geometry.BBox)
		for _, k := range a.Geometry.Keypoints {
			writeFloats(&sb, k.X/width, k.Y/height)
			sb.WriteString(" " + strconv.Itoa(k.V))
		}
	case domain.TypeOBB:
		box(a.Geometry.BBox)
		writeFloats(&sb, a.Geometry.Angle)
	default:
		box(a.Geometry.BBox)
	}
	return sb.String()
}

func writeFloats(sb *strings.Builder, values ...float64) {
	for _, v := range values {
		sb.WriteString(" ")
		sb.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
	}
}

// ReadClassNames parses a classes.txt file: one name per line, ordered by id
func ReadClassNames(r io.Reader) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("while reading class names: %w", domain.ErrIOFailure)
	}
	return names, nil
}

// WriteClassNames writes classes.txt ordered by class id
func WriteClassNames(w io.Writer, classes domain.ClassList) error {
	sorted := append(domain.ClassList(nil), classes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, c := range sorted {
		if _, err := fmt.Fprintln(w, c.Name); err != nil {
			return fmt.Errorf("while writing class names: %w", domain.ErrIOFailure)
		}
	}
	return nil
}
