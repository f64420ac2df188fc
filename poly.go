package shapefile

import (
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// part is one ring or line of a poly record with its Z and M runs.
type part struct {
	points orb.LineString
	z, m   []float64
}

// polyEncoder handles the PolyLine and Polygon families. Both share the
// bbox / parts / points layout; polygons additionally normalise ring winding.
type polyEncoder struct {
	t   ShapeType
	log *slog.Logger
}

func (e polyEncoder) polygon() bool {
	return e.t.Family() == Polygon
}

func (e polyEncoder) contentLength(s Shape) (int32, error) {
	parts, err := e.parts(s, nil)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range parts {
		n += len(p.points)
	}
	return 22 + 2*int32(len(parts)) + 8*int32(n) + zmWords(e.t, n), nil
}

func (e polyEncoder) encode(w *byteWriter, s Shape) error {
	parts, err := e.parts(s, e.log)
	if err != nil {
		return err
	}

	var all orb.MultiPoint
	var z, m []float64
	starts := make([]int32, 0, len(parts))
	for _, p := range parts {
		starts = append(starts, int32(len(all)))
		all = append(all, p.points...)
		z = append(z, p.z...)
		m = append(m, p.m...)
	}

	b := all.Bound()
	w.writeInt32(int32(e.t))
	w.writeFloat64s(b.Min[0], b.Min[1], b.Max[0], b.Max[1])
	w.writeInt32(int32(len(parts)))
	w.writeInt32(int32(len(all)))
	for _, start := range starts {
		w.writeInt32(start)
	}
	for _, p := range all {
		w.writeFloat64s(p[0], p[1])
	}
	writeZM(w, e.t, len(all), z, m)
	return nil
}

// parts flattens the geometry into stored parts. Polygon rings are closed and
// re-wound so exteriors are clockwise and holes counter-clockwise. Degenerate
// parts are dropped and reported to log when it is non-nil.
func (e polyEncoder) parts(s Shape, log *slog.Logger) ([]part, error) {
	var parts []part
	next := 0
	add := func(pts orb.LineString, hole bool) bool {
		p := part{points: append(orb.LineString(nil), pts...)}
		if s.Z != nil {
			p.z = append([]float64(nil), s.Z[next:next+len(pts)]...)
		}
		if s.M != nil {
			p.m = append([]float64(nil), s.M[next:next+len(pts)]...)
		}
		next += len(pts)

		if e.polygon() {
			var ok bool
			if p, ok = normalizeRing(p, hole); !ok {
				return false
			}
		} else if len(p.points) < 2 {
			if log != nil {
				log.Warn("skipping degenerate line part",
					slog.String("type", e.t.String()),
					slog.Int("points", len(pts)))
			}
			return false
		}
		parts = append(parts, p)
		return true
	}

	// addPolygon stores the exterior and holes of one polygon. A degenerate
	// exterior drops the whole polygon, holes included.
	addPolygon := func(poly orb.Polygon) {
		if len(poly) == 0 {
			return
		}
		if !add(orb.LineString(poly[0]), false) {
			for _, hole := range poly[1:] {
				next += len(hole)
			}
			if log != nil {
				log.Warn("skipping polygon with degenerate exterior ring",
					slog.String("type", e.t.String()),
					slog.Int("points", len(poly[0])),
					slog.Int("holes", len(poly)-1))
			}
			return
		}
		for _, r := range poly[1:] {
			if !add(orb.LineString(r), true) && log != nil {
				log.Warn("skipping degenerate polygon ring",
					slog.String("type", e.t.String()),
					slog.Int("points", len(r)),
					slog.Bool("hole", true))
			}
		}
	}

	switch v := s.Geometry.(type) {
	case orb.LineString:
		if e.polygon() {
			return nil, e.mismatch(v)
		}
		add(v, false)
	case orb.MultiLineString:
		if e.polygon() {
			return nil, e.mismatch(v)
		}
		for _, ls := range v {
			add(ls, false)
		}
	case orb.Ring:
		if !e.polygon() {
			return nil, e.mismatch(v)
		}
		addPolygon(orb.Polygon{v})
	case orb.Polygon:
		if !e.polygon() {
			return nil, e.mismatch(v)
		}
		addPolygon(v)
	case orb.MultiPolygon:
		if !e.polygon() {
			return nil, e.mismatch(v)
		}
		for _, poly := range v {
			addPolygon(poly)
		}
	case orb.Bound:
		if !e.polygon() {
			return nil, e.mismatch(v)
		}
		addPolygon(orb.Polygon{boundToRing(v)})
	default:
		return nil, e.mismatch(v)
	}

	if len(parts) == 0 {
		return nil, &EncodeError{Type: e.t, Err: ErrEmptyGeometry}
	}
	return parts, nil
}

func (e polyEncoder) mismatch(g orb.Geometry) error {
	return &EncodeError{Type: e.t, Err: fmt.Errorf("%w: %T", ErrShapeTypeMismatch, g)}
}

// normalizeRing closes p and winds it clockwise for an exterior ring or
// counter-clockwise for a hole. It reports false for rings with fewer than
// four vertices or no area.
func normalizeRing(p part, hole bool) (part, bool) {
	if len(p.points) == 0 {
		return p, false
	}
	if first, last := p.points[0], p.points[len(p.points)-1]; first != last {
		p.points = append(p.points, first)
		if p.z != nil {
			p.z = append(p.z, p.z[0])
		}
		if p.m != nil {
			p.m = append(p.m, p.m[0])
		}
	}
	if len(p.points) < 4 {
		return p, false
	}

	ring := orb.Ring(p.points)
	want := orb.CW
	if hole {
		want = orb.CCW
	}
	switch ring.Orientation() {
	case 0:
		return p, false
	case want:
		return p, true
	}

	ring.Reverse()
	reverseFloats(p.z)
	reverseFloats(p.m)
	return p, true
}

func reverseFloats(vs []float64) {
	for i, j := 0, len(vs)-1; i < j; i, j = i+1, j-1 {
		vs[i], vs[j] = vs[j], vs[i]
	}
}

func (e polyEncoder) decode(r *byteReader) (Shape, error) {
	r.readFloat64s(4)
	numParts := int(r.readInt32())
	numPoints := int(r.readInt32())
	starts := r.readInt32s(numParts)
	xy := r.readFloat64s(2 * numPoints)
	if err := r.Err(); err != nil {
		return Shape{}, err
	}
	z, m := readZM(r, e.t, numPoints)
	if err := r.Err(); err != nil {
		return Shape{}, err
	}

	parts := make([]part, 0, numParts)
	for i, start := range starts {
		end := int32(numPoints)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if start < 0 || start > end || int(end) > numPoints {
			return Shape{}, fmt.Errorf("%w: part %d spans %d..%d of %d points", ErrInvalidData, i, start, end, numPoints)
		}
		p := part{points: make(orb.LineString, 0, end-start)}
		for j := start; j < end; j++ {
			p.points = append(p.points, orb.Point{xy[2*j], xy[2*j+1]})
		}
		if z != nil {
			p.z = z[start:end]
		}
		if m != nil {
			p.m = m[start:end]
		}
		parts = append(parts, p)
	}

	if e.polygon() {
		return assemblePolygons(parts), nil
	}
	return assembleLines(parts), nil
}

func assembleLines(parts []part) Shape {
	var s Shape
	mls := make(orb.MultiLineString, 0, len(parts))
	for _, p := range parts {
		mls = append(mls, p.points)
	}
	s.Z, s.M = joinRuns(parts)
	if len(mls) == 1 {
		s.Geometry = mls[0]
	} else {
		s.Geometry = mls
	}
	return s
}

// assemblePolygons groups stored rings into polygons. Clockwise rings start a
// polygon; counter-clockwise rings are holes of the first exterior containing
// them, or of the most recent exterior.
func assemblePolygons(parts []part) Shape {
	type group struct {
		rings []part
	}
	var groups []*group

	for _, p := range parts {
		ring := orb.Ring(p.points)
		if len(ring) < 4 || ring.Orientation() != orb.CCW || len(groups) == 0 {
			groups = append(groups, &group{rings: []part{p}})
			continue
		}
		owner := groups[len(groups)-1]
		for _, g := range groups {
			if planar.RingContains(orb.Ring(g.rings[0].points), ring[0]) {
				owner = g
				break
			}
		}
		owner.rings = append(owner.rings, p)
	}

	var ordered []part
	mp := make(orb.MultiPolygon, 0, len(groups))
	for _, g := range groups {
		poly := make(orb.Polygon, 0, len(g.rings))
		for _, p := range g.rings {
			poly = append(poly, orb.Ring(p.points))
			ordered = append(ordered, p)
		}
		mp = append(mp, poly)
	}

	var s Shape
	s.Z, s.M = joinRuns(ordered)
	if len(mp) == 1 {
		s.Geometry = mp[0]
	} else {
		s.Geometry = mp
	}
	return s
}

// joinRuns concatenates the Z and M runs of parts in order.
func joinRuns(parts []part) (z, m []float64) {
	for _, p := range parts {
		if p.z != nil {
			z = append(z, p.z...)
		}
		if p.m != nil {
			m = append(m, p.m...)
		}
	}
	return z, m
}
