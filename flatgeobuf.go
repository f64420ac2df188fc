package shapefile

import (
	"errors"
	"fmt"
	"io"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
)

// ErrNoIndex is returned when importing a FlatGeobuf file without a spatial
// index; the FlatGeobuf reader can only enumerate features through it.
var ErrNoIndex = errors.New("shapefile: flatgeobuf file has no spatial index")

// CRS represents a coordinate reference system written to FlatGeobuf exports.
type CRS struct {
	Code        int    // EPSG code (e.g., 4326 for WGS84)
	Name        string // CRS name
	Description string // CRS description
	WKT         string // Well-Known Text representation
}

// WGS84 returns the standard WGS84 CRS (EPSG:4326).
func WGS84() *CRS {
	return &CRS{
		Code: 4326,
		Name: "WGS 84",
	}
}

// ExportOptions configures FlatGeobuf export.
type ExportOptions struct {
	Name         string // Layer name
	Description  string // Layer description
	IncludeIndex bool   // Include spatial index (default: true)
	CRS          *CRS   // Coordinate reference system (optional)
}

// DefaultExportOptions returns default options for FlatGeobuf export.
func DefaultExportOptions() *ExportOptions {
	return &ExportOptions{
		IncludeIndex: true,
	}
}

// ExportFlatGeobuf writes every non-null record of s to w as a FlatGeobuf
// layer, in fid order. Only X and Y are exported.
func ExportFlatGeobuf(w io.Writer, s *FeatureSource, opts *ExportOptions) error {
	if err := s.check(); err != nil {
		return err
	}
	if opts == nil {
		opts = DefaultExportOptions()
	}

	gen := &recordGenerator{source: s}

	builder := flatbuffers.NewBuilder(4096)
	header := writer.NewHeader(builder)
	header.SetGeometryType(fgbGeometryType(s.ShapeType()))
	if opts.Name != "" {
		header.SetName(opts.Name)
	}
	if opts.Description != "" {
		header.SetDescription(opts.Description)
	}

	if opts.CRS != nil {
		crs := writer.NewCrs(builder)
		crs.SetOrg("EPSG")
		if opts.CRS.Code > 0 {
			crs.SetCode(int32(opts.CRS.Code))
		}
		if opts.CRS.Name != "" {
			crs.SetName(opts.CRS.Name)
		}
		if opts.CRS.Description != "" {
			crs.SetDescription(opts.CRS.Description)
		}
		if opts.CRS.WKT != "" && opts.CRS.Description == "" {
			crs.SetDescription(opts.CRS.WKT)
		}
		header.SetCrs(crs)
	}

	fgbWriter := writer.NewWriter(header, opts.IncludeIndex, gen, nil)
	if _, err := fgbWriter.Write(w); err != nil {
		return fmt.Errorf("write flatgeobuf: %w", err)
	}
	return gen.err
}

// recordGenerator feeds records to the FlatGeobuf writer. The writer's
// generator interface cannot return errors, so the first one is kept in err
// and generation stops.
type recordGenerator struct {
	source *FeatureSource
	fid    int
	err    error
}

func (g *recordGenerator) Generate() *writer.Feature {
	for g.err == nil && g.fid < g.source.Count() {
		shape, err := g.source.Read(g.fid)
		g.fid++
		if err != nil {
			g.err = err
			return nil
		}
		if shape.Geometry == nil {
			continue
		}

		builder := flatbuffers.NewBuilder(1024)
		fgbGeom := toFGB(shape.Geometry, builder)
		if fgbGeom == nil {
			continue
		}
		feature := writer.NewFeature(builder)
		feature.SetGeometry(fgbGeom)
		return feature
	}
	return nil
}

// ImportFlatGeobuf appends every feature of the FlatGeobuf file at path to s
// and returns the number of records appended. Features whose geometry cannot
// be stored in s's shape type stop the import with an *EncodeError; records
// appended before it are kept.
//
// Features are enumerated through the file's spatial index, so they are
// appended in the order the index search returns them, not in the file's
// feature order. Callers that need a particular fid order must sort the
// records afterwards.
func ImportFlatGeobuf(s *FeatureSource, path string) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	fgb, err := flatgeobuf.New(path)
	if err != nil {
		return 0, fmt.Errorf("open flatgeobuf %s: %w", path, err)
	}

	h := fgb.Header()
	if h.FeaturesCount() == 0 {
		return 0, nil
	}
	if h.IndexNodeSize() == 0 || h.EnvelopeLength() < 4 {
		return 0, ErrNoIndex
	}

	features, err := fgb.Search(h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3))
	if err != nil {
		return 0, fmt.Errorf("search flatgeobuf %s: %w", path, err)
	}

	n := 0
	for _, f := range features {
		if f == nil {
			continue
		}
		var geomObj flattypes.Geometry
		geom := fromFGB(f.Geometry(&geomObj))
		if geom == nil {
			continue
		}
		if err := s.Append(Shape{Geometry: geom}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
