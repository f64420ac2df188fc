package shapefile

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ShapeType is the shape type tag stored in headers and records.
type ShapeType int32

// Shape types defined by the ESRI Shapefile Technical Description.
const (
	NullShape   ShapeType = 0
	Point       ShapeType = 1
	PolyLine    ShapeType = 3
	Polygon     ShapeType = 5
	MultiPoint  ShapeType = 8
	PointZ      ShapeType = 11
	PolyLineZ   ShapeType = 13
	PolygonZ    ShapeType = 15
	MultiPointZ ShapeType = 18
	PointM      ShapeType = 21
	PolyLineM   ShapeType = 23
	PolygonM    ShapeType = 25
	MultiPointM ShapeType = 28
	MultiPatch  ShapeType = 31
)

var shapeTypeNames = map[ShapeType]string{
	NullShape:   "NullShape",
	Point:       "Point",
	PolyLine:    "PolyLine",
	Polygon:     "Polygon",
	MultiPoint:  "MultiPoint",
	PointZ:      "PointZ",
	PolyLineZ:   "PolyLineZ",
	PolygonZ:    "PolygonZ",
	MultiPointZ: "MultiPointZ",
	PointM:      "PointM",
	PolyLineM:   "PolyLineM",
	PolygonM:    "PolygonM",
	MultiPointM: "MultiPointM",
	MultiPatch:  "MultiPatch",
}

func (t ShapeType) String() string {
	if name, ok := shapeTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ShapeType(%d)", int32(t))
}

// Valid reports whether t is a known shape type.
func (t ShapeType) Valid() bool {
	_, ok := shapeTypeNames[t]
	return ok
}

// HasZ reports whether records of this type carry Z values.
func (t ShapeType) HasZ() bool {
	switch t {
	case PointZ, PolyLineZ, PolygonZ, MultiPointZ, MultiPatch:
		return true
	}
	return false
}

// HasM reports whether records of this type carry an M slot.
// Z types always have one.
func (t ShapeType) HasM() bool {
	switch t {
	case PointM, PolyLineM, PolygonM, MultiPointM:
		return true
	}
	return t.HasZ()
}

// Family returns the two-dimensional base type of t.
func (t ShapeType) Family() ShapeType {
	switch t {
	case PointZ, PointM:
		return Point
	case PolyLineZ, PolyLineM:
		return PolyLine
	case PolygonZ, PolygonM:
		return Polygon
	case MultiPointZ, MultiPointM:
		return MultiPoint
	}
	return t
}

// withM returns the M variant of t's family.
func (t ShapeType) withM() ShapeType {
	switch t.Family() {
	case Point:
		return PointM
	case PolyLine:
		return PolyLineM
	case Polygon:
		return PolygonM
	case MultiPoint:
		return MultiPointM
	}
	return t
}

// withZ returns the Z variant of t's family.
func (t ShapeType) withZ() ShapeType {
	switch t.Family() {
	case Point:
		return PointZ
	case PolyLine:
		return PolyLineZ
	case Polygon:
		return PolygonZ
	case MultiPoint:
		return MultiPointZ
	}
	return t
}

// noDataM is written for absent measures. Readers treat any M below -1e38 as no data.
const noDataM = -1e39

func isNoData(m float64) bool {
	return m < -1e38 || math.IsNaN(m)
}

// Shape is a geometry with optional per-vertex Z and M values.
//
// Geometry is nil (null shape), orb.Point, orb.MultiPoint, orb.LineString,
// orb.MultiLineString, orb.Ring, orb.Polygon, orb.MultiPolygon or orb.Bound.
// Z and M hold one value per vertex in the order the geometry lists them;
// nil means the dimension is absent.
type Shape struct {
	Geometry orb.Geometry
	Z        []float64
	M        []float64
}

// recordType picks the shape type a record for s is written with in a file of
// type fileType. The file type is promoted to its M or Z variant when s carries
// values the file type cannot hold; it is never demoted.
func recordType(fileType ShapeType, s Shape) (ShapeType, error) {
	if s.Geometry == nil {
		return NullShape, nil
	}

	family := geometryFamily(s.Geometry)
	if family == NullShape {
		return fileType, &EncodeError{Type: fileType, Err: fmt.Errorf("%w: %T", ErrUnsupportedType, s.Geometry)}
	}
	if fileType.Family() != family {
		return fileType, &EncodeError{
			Type: fileType,
			Err:  fmt.Errorf("%w: %T in %s file", ErrShapeTypeMismatch, s.Geometry, fileType),
		}
	}

	t := fileType
	if len(s.Z) > 0 && !t.HasZ() {
		t = t.withZ()
	} else if len(s.M) > 0 && !t.HasM() {
		t = t.withM()
	}
	return t, nil
}

// geometryFamily maps an orb geometry to the base shape type that stores it.
func geometryFamily(g orb.Geometry) ShapeType {
	switch g.(type) {
	case orb.Point:
		return Point
	case orb.MultiPoint:
		return MultiPoint
	case orb.LineString, orb.MultiLineString:
		return PolyLine
	case orb.Ring, orb.Polygon, orb.MultiPolygon, orb.Bound:
		return Polygon
	default:
		return NullShape
	}
}

// vertexCount returns the number of vertices a geometry lists.
func vertexCount(g orb.Geometry) int {
	switch v := g.(type) {
	case orb.Point:
		return 1
	case orb.MultiPoint:
		return len(v)
	case orb.LineString:
		return len(v)
	case orb.MultiLineString:
		n := 0
		for _, ls := range v {
			n += len(ls)
		}
		return n
	case orb.Ring:
		return len(v)
	case orb.Polygon:
		n := 0
		for _, r := range v {
			n += len(r)
		}
		return n
	case orb.MultiPolygon:
		n := 0
		for _, p := range v {
			n += vertexCount(p)
		}
		return n
	case orb.Bound:
		return 5
	}
	return 0
}

func checkDimensions(t ShapeType, s Shape) error {
	n := vertexCount(s.Geometry)
	if s.Z != nil && len(s.Z) != n {
		return &EncodeError{Type: t, Err: fmt.Errorf("%w: %d vertices, %d Z values", ErrDimensionMismatch, n, len(s.Z))}
	}
	if s.M != nil && len(s.M) != n {
		return &EncodeError{Type: t, Err: fmt.Errorf("%w: %d vertices, %d M values", ErrDimensionMismatch, n, len(s.M))}
	}
	return nil
}

func boundToRing(b orb.Bound) orb.Ring {
	return orb.Ring{
		{b.Min[0], b.Min[1]},
		{b.Max[0], b.Min[1]},
		{b.Max[0], b.Max[1]},
		{b.Min[0], b.Max[1]},
		{b.Min[0], b.Min[1]},
	}
}

// Extent is the bounding box of a record or file including Z and M ranges.
// ZMin/ZMax and MMin/MMax are zero when the dimension is absent.
type Extent struct {
	Bound      orb.Bound
	ZMin, ZMax float64
	MMin, MMax float64
	Empty      bool // Null shape; contributes nothing to a union
}

// Union returns the smallest extent covering e and o.
func (e Extent) Union(o Extent) Extent {
	if e.Empty {
		return o
	}
	if o.Empty {
		return e
	}
	return Extent{
		Bound: e.Bound.Union(o.Bound),
		ZMin:  math.Min(e.ZMin, o.ZMin),
		ZMax:  math.Max(e.ZMax, o.ZMax),
		MMin:  math.Min(e.MMin, o.MMin),
		MMax:  math.Max(e.MMax, o.MMax),
	}
}

// shapeExtent computes the extent of s as stored.
func shapeExtent(s Shape) Extent {
	if s.Geometry == nil {
		return Extent{Empty: true}
	}
	e := Extent{Bound: s.Geometry.Bound()}
	e.ZMin, e.ZMax = valueRange(s.Z)
	e.MMin, e.MMax = valueRange(s.M)
	return e
}

// valueRange returns min and max of vs, ignoring M no-data values.
// It returns 0, 0 when no value is usable.
func valueRange(vs []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vs {
		if isNoData(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return 0, 0
	}
	return lo, hi
}
