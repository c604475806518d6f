package codec

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/lewtec/demarca/internal/domain"
	"github.com/lewtec/demarca/internal/geometry"
)

// VOCFile is a Pascal VOC annotation document
type VOCFile struct {
	XMLName   xml.Name    `xml:"annotation"`
	Folder    string      `xml:"folder,omitempty"`
	Filename  string      `xml:"filename"`
	Path      string      `xml:"path,omitempty"`
	Source    *VOCSource  `xml:"source,omitempty"`
	Size      VOCSize     `xml:"size"`
	Segmented int         `xml:"segmented"`
	Objects   []VOCObject `xml:"object"`
}

type VOCSource struct {
	Database string `xml:"database"`
}

type VOCSize struct {
	Width  float64 `xml:"width"`
	Height float64 `xml:"height"`
	Depth  int     `xml:"depth"`
}

type VOCObject struct {
	Name      string  `xml:"name"`
	Pose      string  `xml:"pose,omitempty"`
	Truncated int     `xml:"truncated"`
	Difficult int     `xml:"difficult"`
	BndBox    *VOCBox `xml:"bndbox"`
}

type VOCBox struct {
	XMin float64 `xml:"xmin"`
	YMin float64 `xml:"ymin"`
	XMax float64 `xml:"xmax"`
	YMax float64 `xml:"ymax"`
}

// DecodeVOC parses a VOC document. Objects without a name or a well formed
// bndbox are counted as skipped.
func DecodeVOC(r io.Reader) (*VOCFile, []Object, int, error) {
	var f VOCFile
	if err := xml.NewDecoder(r).Decode(&f); err != nil {
		return nil, nil, 0, malformed("while decoding voc xml: %v", err)
	}
	var (
		objects []Object
		skipped int
	)
	for _, o := range f.Objects {
		name := strings.TrimSpace(o.Name)
		if name == "" || o.BndBox == nil || o.BndBox.XMax < o.BndBox.XMin || o.BndBox.YMax < o.BndBox.YMin {
			skipped++
			continue
		}
		objects = append(objects, Object{
			ClassIndex: -1,
			ClassName:  name,
			Type:       domain.TypeBBox,
			Geometry: domain.Geometry{BBox: geometry.RectFromCorners(
				geometry.Pt(o.BndBox.XMin, o.BndBox.YMin),
				geometry.Pt(o.BndBox.XMax, o.BndBox.YMax),
			)},
		})
	}
	return &f, objects, skipped, nil
}

// BuildVOC converts an image and its annotations to a VOC document. Every
// annotation with an extent is written as its bounding box.
func BuildVOC(img *domain.Image, annotations []*domain.Annotation) *VOCFile {
	f := &VOCFile{
		Folder:   "images",
		Filename: img.Filename,
		Path:     img.OriginalPath,
		Source:   &VOCSource{Database: "demarca"},
		Size:     VOCSize{Width: float64(img.Width), Height: float64(img.Height), Depth: 3},
	}
	for _, a := range annotations {
		if a.Type == domain.TypeClassify {
			continue
		}
		b := a.Bounds()
		f.Objects = append(f.Objects, VOCObject{
			Name: a.ClassName,
			Pose: "Unspecified",
			BndBox: &VOCBox{
				XMin: b.X,
				YMin: b.Y,
				XMax: b.X + b.Width,
				YMax: b.Y + b.Height,
			},
		})
	}
	return f
}

// EncodeVOC writes the VOC document for one image
func EncodeVOC(w io.Writer, img *domain.Image, annotations []*domain.Annotation) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("while writing voc xml: %w", domain.ErrIOFailure)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(BuildVOC(img, annotations)); err != nil {
		return fmt.Errorf("while writing voc xml: %w", domain.ErrIOFailure)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("while writing voc xml: %w", domain.ErrIOFailure)
	}
	return nil
}
