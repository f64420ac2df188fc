package shapefile

import (
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
)

// fgbGeometryType maps a shape type family to the FlatGeobuf header geometry
// type. PolyLine and Polygon records decode to either single or multi
// geometries, so those layers are declared Unknown and each feature carries
// its own type.
func fgbGeometryType(t ShapeType) flattypes.GeometryType {
	switch t.Family() {
	case Point:
		return flattypes.GeometryTypePoint
	case MultiPoint:
		return flattypes.GeometryTypeMultiPoint
	default:
		return flattypes.GeometryTypeUnknown
	}
}

// toFGB converts a decoded shape geometry to a FlatGeobuf geometry.
// It returns nil for null shapes.
func toFGB(geom orb.Geometry, builder *flatbuffers.Builder) *writer.Geometry {
	g := writer.NewGeometry(builder)

	switch v := geom.(type) {
	case orb.Point:
		g.SetType(flattypes.GeometryTypePoint)
		g.SetXY([]float64{v[0], v[1]})

	case orb.MultiPoint:
		g.SetType(flattypes.GeometryTypeMultiPoint)
		g.SetXY(flatXY(v))

	case orb.LineString:
		g.SetType(flattypes.GeometryTypeLineString)
		g.SetXY(flatXY(v))

	case orb.MultiLineString:
		g.SetType(flattypes.GeometryTypeMultiLineString)
		lines := make([][]orb.Point, len(v))
		for i, ls := range v {
			lines[i] = ls
		}
		xy, ends := flatXYEnds(lines)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.Polygon:
		g.SetType(flattypes.GeometryTypePolygon)
		xy, ends := flatXYEnds(polygonRings(v))
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.MultiPolygon:
		g.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			pg := writer.NewGeometry(builder)
			pg.SetType(flattypes.GeometryTypePolygon)
			xy, ends := flatXYEnds(polygonRings(poly))
			pg.SetXY(xy)
			pg.SetEnds(ends)
			parts = append(parts, *pg)
		}
		g.SetParts(parts)

	default:
		return nil
	}

	return g
}

func polygonRings(p orb.Polygon) [][]orb.Point {
	rings := make([][]orb.Point, len(p))
	for i, r := range p {
		rings[i] = r
	}
	return rings
}

func flatXY(pts []orb.Point) []float64 {
	xy := make([]float64, 0, 2*len(pts))
	for _, p := range pts {
		xy = append(xy, p[0], p[1])
	}
	return xy
}

// flatXYEnds flattens parts into one XY array with cumulative end indices.
func flatXYEnds(parts [][]orb.Point) ([]float64, []uint32) {
	var xy []float64
	ends := make([]uint32, 0, len(parts))
	for _, pts := range parts {
		xy = append(xy, flatXY(pts)...)
		ends = append(ends, uint32(len(xy)/2))
	}
	return xy, ends
}

// fromFGB converts a FlatGeobuf geometry to an orb geometry a shapefile can
// store. Collections and unknown types return nil.
func fromFGB(g *flattypes.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}

	switch g.Type() {
	case flattypes.GeometryTypePoint:
		pts := fgbPoints(g, 0, g.XyLength()/2)
		if len(pts) == 0 {
			return nil
		}
		return pts[0]

	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(fgbPoints(g, 0, g.XyLength()/2))

	case flattypes.GeometryTypeLineString:
		return orb.LineString(fgbPoints(g, 0, g.XyLength()/2))

	case flattypes.GeometryTypeMultiLineString:
		parts := fgbParts(g)
		mls := make(orb.MultiLineString, len(parts))
		for i, p := range parts {
			mls[i] = orb.LineString(p)
		}
		return mls

	case flattypes.GeometryTypePolygon:
		return fgbPolygon(g)

	case flattypes.GeometryTypeMultiPolygon:
		n := g.PartsLength()
		if n == 0 {
			return orb.MultiPolygon{fgbPolygon(g)}
		}
		mp := make(orb.MultiPolygon, 0, n)
		for i := 0; i < n; i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				mp = append(mp, fgbPolygon(&part))
			}
		}
		return mp

	default:
		return nil
	}
}

func fgbPolygon(g *flattypes.Geometry) orb.Polygon {
	parts := fgbParts(g)
	poly := make(orb.Polygon, len(parts))
	for i, p := range parts {
		poly[i] = orb.Ring(p)
	}
	return poly
}

// fgbPoints reads vertices [start, end) of g's XY array.
func fgbPoints(g *flattypes.Geometry, start, end int) []orb.Point {
	pts := make([]orb.Point, 0, end-start)
	for i := start; i < end; i++ {
		pts = append(pts, orb.Point{g.Xy(2 * i), g.Xy(2*i + 1)})
	}
	return pts
}

// fgbParts splits g's XY array at its ends. Without ends the whole array is
// one part.
func fgbParts(g *flattypes.Geometry) [][]orb.Point {
	total := g.XyLength() / 2
	n := g.EndsLength()
	if n == 0 {
		if total == 0 {
			return nil
		}
		return [][]orb.Point{fgbPoints(g, 0, total)}
	}

	parts := make([][]orb.Point, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		end := int(g.Ends(i))
		if end > total {
			end = total
		}
		if end < start {
			end = start
		}
		parts = append(parts, fgbPoints(g, start, end))
		start = end
	}
	return parts
}
