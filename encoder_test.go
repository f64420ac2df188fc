package shapefile

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
)

// square10 is a clockwise 10x10 exterior ring.
var square10 = orb.Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}

// hole2to8 is a counter-clockwise hole inside square10.
var hole2to8 = orb.Ring{{2, 2}, {8, 2}, {8, 8}, {2, 8}, {2, 2}}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func roundTrip(t *testing.T, typ ShapeType, s Shape) (ShapeType, Shape) {
	t.Helper()
	rec, contentLength, err := encodeRecord(typ, 1, s, discardLogger())
	if err != nil {
		t.Fatalf("encodeRecord failed: %v", err)
	}
	if got := int32(len(rec)-recordHeaderSize) / 2; got != contentLength {
		t.Fatalf("content length %d does not match body of %d words", contentLength, got)
	}
	if got := int32(be.Uint32(rec[4:])); got != contentLength {
		t.Fatalf("record header content length %d, expected %d", got, contentLength)
	}

	gotType, got, err := decodeBody(rec[recordHeaderSize:])
	if err != nil {
		t.Fatalf("decodeBody failed: %v", err)
	}
	return gotType, got
}

func TestEncode_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		typ   ShapeType
		shape Shape
	}{
		{"Null", NullShape, Shape{}},
		{"Point", Point, Shape{Geometry: orb.Point{10, 20}}},
		{"PointM", PointM, Shape{Geometry: orb.Point{10, 20}, M: []float64{5}}},
		{"PointZ", PointZ, Shape{Geometry: orb.Point{10, 20}, Z: []float64{3}, M: []float64{4}}},
		{"PointZ without M", PointZ, Shape{Geometry: orb.Point{10, 20}, Z: []float64{3}}},
		{"MultiPoint", MultiPoint, Shape{Geometry: orb.MultiPoint{{1, 2}, {3, 4}, {-5, 6}}}},
		{"MultiPointM", MultiPointM, Shape{Geometry: orb.MultiPoint{{1, 2}, {3, 4}}, M: []float64{0.5, 1.5}}},
		{"MultiPointZ", MultiPointZ, Shape{
			Geometry: orb.MultiPoint{{1, 2}, {3, 4}},
			Z:        []float64{10, 20},
			M:        []float64{1, 2},
		}},
		{"PolyLine single", PolyLine, Shape{Geometry: orb.LineString{{0, 0}, {1, 1}, {2, 0}}}},
		{"PolyLine multi", PolyLine, Shape{Geometry: orb.MultiLineString{
			{{0, 0}, {1, 1}},
			{{5, 5}, {6, 6}, {7, 5}},
		}}},
		{"PolyLineM", PolyLineM, Shape{
			Geometry: orb.LineString{{0, 0}, {1, 1}, {2, 0}},
			M:        []float64{0, 1, 2},
		}},
		{"PolyLineZ", PolyLineZ, Shape{
			Geometry: orb.MultiLineString{{{0, 0}, {1, 1}}, {{5, 5}, {6, 6}}},
			Z:        []float64{1, 2, 3, 4},
			M:        []float64{5, 6, 7, 8},
		}},
		{"Polygon", Polygon, Shape{Geometry: orb.Polygon{square10}}},
		{"Polygon with hole", Polygon, Shape{Geometry: orb.Polygon{square10, hole2to8}}},
		{"Polygon multi", Polygon, Shape{Geometry: orb.MultiPolygon{
			{square10},
			{{{20, 0}, {20, 5}, {25, 5}, {25, 0}, {20, 0}}},
		}}},
		{"PolygonM", PolygonM, Shape{
			Geometry: orb.Polygon{square10},
			M:        []float64{1, 2, 3, 4, 1},
		}},
		{"PolygonZ", PolygonZ, Shape{
			Geometry: orb.Polygon{square10, hole2to8},
			Z:        []float64{1, 2, 3, 4, 1, 5, 6, 7, 8, 5},
			M:        []float64{0, 0, 0, 0, 0, 9, 9, 9, 9, 9},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, got := roundTrip(t, tt.typ, tt.shape)
			if gotType != tt.typ {
				t.Errorf("expected type %s, got %s", tt.typ, gotType)
			}
			if diff := cmp.Diff(tt.shape, got); diff != "" {
				t.Errorf("shape mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncode_ContentLength(t *testing.T) {
	poly := Shape{Geometry: orb.Polygon{square10}}
	withHole := Shape{Geometry: orb.Polygon{square10, hole2to8}}
	mp := Shape{Geometry: orb.MultiPoint{{1, 2}, {3, 4}, {5, 6}}}

	tests := []struct {
		name  string
		typ   ShapeType
		shape Shape
		want  int32
	}{
		{"Null", NullShape, Shape{}, 2},
		{"Point", Point, Shape{Geometry: orb.Point{1, 2}}, 10},
		{"PointM", PointM, Shape{Geometry: orb.Point{1, 2}}, 14},
		{"PointZ", PointZ, Shape{Geometry: orb.Point{1, 2}}, 18},
		{"MultiPoint", MultiPoint, mp, 20 + 24},
		{"MultiPointM", MultiPointM, mp, 20 + 24 + 8 + 12},
		{"MultiPointZ", MultiPointZ, mp, 20 + 24 + 16 + 24},
		{"Polygon", Polygon, poly, 22 + 2 + 40},
		{"Polygon with hole", Polygon, withHole, 22 + 4 + 80},
		{"PolygonM", PolygonM, poly, 22 + 2 + 40 + 8 + 20},
		{"PolygonZ", PolygonZ, poly, 22 + 2 + 40 + 16 + 40},
		{"PolyLine", PolyLine, Shape{Geometry: orb.LineString{{0, 0}, {1, 1}}}, 22 + 2 + 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got, err := encodeRecord(tt.typ, 1, tt.shape, discardLogger())
			if err != nil {
				t.Fatalf("encodeRecord failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected content length %d, got %d", tt.want, got)
			}
		})
	}
}

func TestEncode_PointLayout(t *testing.T) {
	rec, _, err := encodeRecord(Point, 7, Shape{Geometry: orb.Point{10, 20}}, nil)
	if err != nil {
		t.Fatalf("encodeRecord failed: %v", err)
	}

	w := newByteWriter(0)
	w.writeInt32BE(7)
	w.writeInt32BE(10)
	w.writeInt32(int32(Point))
	w.writeFloat64s(10, 20)
	if diff := cmp.Diff(w.Bytes(), rec); diff != "" {
		t.Errorf("record bytes mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_RingNormalization(t *testing.T) {
	ccw := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	cw := orb.Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}
	if ccw.Orientation() != orb.CCW || cw.Orientation() != orb.CW {
		t.Fatal("test rings have unexpected orientation")
	}

	fromCCW, _, err := encodeRecord(Polygon, 1, Shape{Geometry: orb.Polygon{ccw}}, nil)
	if err != nil {
		t.Fatalf("encodeRecord failed: %v", err)
	}
	fromCW, _, err := encodeRecord(Polygon, 1, Shape{Geometry: orb.Polygon{cw}}, nil)
	if err != nil {
		t.Fatalf("encodeRecord failed: %v", err)
	}
	if !bytes.Equal(fromCCW, fromCW) {
		t.Error("counter-clockwise exterior did not encode to the same bytes as clockwise")
	}

	if ccw[1] != (orb.Point{10, 0}) {
		t.Error("encoding modified the caller's ring")
	}
}

func TestEncode_HoleNormalization(t *testing.T) {
	cwHole := orb.Ring{{2, 2}, {2, 8}, {8, 8}, {8, 2}, {2, 2}}
	ccwExterior := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}

	_, got := roundTrip(t, Polygon, Shape{Geometry: orb.Polygon{ccwExterior, cwHole}})
	poly, ok := got.Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("expected orb.Polygon, got %T", got.Geometry)
	}
	if len(poly) != 2 {
		t.Fatalf("expected 2 rings, got %d", len(poly))
	}
	if poly[0].Orientation() != orb.CW {
		t.Error("exterior ring not stored clockwise")
	}
	if poly[1].Orientation() != orb.CCW {
		t.Error("hole not stored counter-clockwise")
	}
}

func TestEncode_ReversesZMWithRing(t *testing.T) {
	ccw := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	s := Shape{
		Geometry: orb.Polygon{ccw},
		Z:        []float64{1, 2, 3, 4, 1},
		M:        []float64{10, 20, 30, 40, 10},
	}

	_, got := roundTrip(t, PolygonZ, s)
	want := Shape{
		Geometry: orb.Polygon{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}},
		Z:        []float64{1, 4, 3, 2, 1},
		M:        []float64{10, 40, 30, 20, 10},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_ClosesRings(t *testing.T) {
	open := orb.Ring{{0, 0}, {0, 4}, {4, 4}, {4, 0}}
	_, got := roundTrip(t, Polygon, Shape{Geometry: orb.Polygon{open}})

	want := orb.Polygon{{{0, 0}, {0, 4}, {4, 4}, {4, 0}, {0, 0}}}
	if diff := cmp.Diff(want, got.Geometry); diff != "" {
		t.Errorf("geometry mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_BoundAndRing(t *testing.T) {
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2, 3}}
	_, got := roundTrip(t, Polygon, Shape{Geometry: b})
	if got.Geometry.Bound() != b {
		t.Errorf("expected bound %v, got %v", b, got.Geometry.Bound())
	}

	_, got = roundTrip(t, Polygon, Shape{Geometry: square10})
	if diff := cmp.Diff(orb.Polygon{square10}, got.Geometry); diff != "" {
		t.Errorf("geometry mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_SkipsDegenerateRing(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	s := Shape{Geometry: orb.Polygon{square10, {{2, 2}, {3, 3}}}}
	rec, _, err := encodeRecord(Polygon, 1, s, log)
	if err != nil {
		t.Fatalf("encodeRecord failed: %v", err)
	}
	if !strings.Contains(buf.String(), "skipping degenerate polygon ring") {
		t.Errorf("expected a warning, got log %q", buf.String())
	}

	_, got, err := decodeBody(rec[recordHeaderSize:])
	if err != nil {
		t.Fatalf("decodeBody failed: %v", err)
	}
	if diff := cmp.Diff(orb.Polygon{square10}, got.Geometry); diff != "" {
		t.Errorf("geometry mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_SkipsHolesOfDegenerateExterior(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	collinear := orb.Ring{{0, 0}, {5, 5}, {10, 10}, {0, 0}}
	other := orb.Ring{{20, 0}, {20, 5}, {25, 5}, {25, 0}, {20, 0}}
	s := Shape{
		Geometry: orb.MultiPolygon{{collinear, hole2to8}, {other}},
		Z:        []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14},
	}
	rec, _, err := encodeRecord(PolygonZ, 1, s, log)
	if err != nil {
		t.Fatalf("encodeRecord failed: %v", err)
	}
	if got := strings.Count(buf.String(), "level=WARN"); got != 1 {
		t.Errorf("expected one warning, got %d: %q", got, buf.String())
	}
	if !strings.Contains(buf.String(), "skipping polygon with degenerate exterior ring") {
		t.Errorf("expected exterior warning, got log %q", buf.String())
	}

	_, got, err := decodeBody(rec[recordHeaderSize:])
	if err != nil {
		t.Fatalf("decodeBody failed: %v", err)
	}
	if diff := cmp.Diff(orb.Polygon{other}, got.Geometry); diff != "" {
		t.Errorf("geometry mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{10, 11, 12, 13, 14}, got.Z); diff != "" {
		t.Errorf("Z mismatch (-want +got):\n%s", diff)
	}

	// Without another polygon nothing is left to store.
	only := Shape{Geometry: orb.Polygon{collinear, hole2to8}}
	if _, _, err := encodeRecord(Polygon, 1, only, nil); !errors.Is(err, ErrEmptyGeometry) {
		t.Errorf("expected ErrEmptyGeometry, got %v", err)
	}
}

func TestEncode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		typ   ShapeType
		shape Shape
		want  error
	}{
		{"all rings degenerate", Polygon, Shape{Geometry: orb.Polygon{{{0, 0}, {1, 1}, {0, 0}}}}, ErrEmptyGeometry},
		{"zero area ring", Polygon, Shape{Geometry: orb.Polygon{{{0, 0}, {1, 1}, {2, 2}, {0, 0}}}}, ErrEmptyGeometry},
		{"empty multipoint", MultiPoint, Shape{Geometry: orb.MultiPoint{}}, ErrEmptyGeometry},
		{"line in polygon", Polygon, Shape{Geometry: orb.LineString{{0, 0}, {1, 1}}}, ErrShapeTypeMismatch},
		{"polygon in polyline", PolyLine, Shape{Geometry: orb.Polygon{square10}}, ErrShapeTypeMismatch},
		{"polygon in point", Point, Shape{Geometry: orb.Polygon{square10}}, ErrShapeTypeMismatch},
		{"short Z", PointZ, Shape{Geometry: orb.Point{1, 2}, Z: []float64{}}, ErrDimensionMismatch},
		{"long M", PolyLineM, Shape{Geometry: orb.LineString{{0, 0}, {1, 1}}, M: []float64{1, 2, 3}}, ErrDimensionMismatch},
		{"multipatch", MultiPatch, Shape{Geometry: orb.Point{1, 2}}, ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := encodeRecord(tt.typ, 1, tt.shape, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !IsEncodeError(err) {
				t.Errorf("expected an *EncodeError, got %T", err)
			}
		})
	}
}

func TestDecode_Truncated(t *testing.T) {
	rec, _, err := encodeRecord(Polygon, 1, Shape{Geometry: orb.Polygon{square10}}, nil)
	if err != nil {
		t.Fatalf("encodeRecord failed: %v", err)
	}
	body := rec[recordHeaderSize:]

	if _, _, err := decodeBody(body[:len(body)-8]); !errors.Is(err, errUnexpectedEndOfData) {
		t.Errorf("expected errUnexpectedEndOfData, got %v", err)
	}
	if _, _, err := decodeBody(body[:2]); err == nil {
		t.Error("expected error for body shorter than the type tag")
	}
}

func TestDecode_HoleBeforeOwner(t *testing.T) {
	// Two exteriors with the hole of the first one stored last.
	other := orb.Ring{{20, 0}, {20, 5}, {25, 5}, {25, 0}, {20, 0}}
	w := newByteWriter(0)
	w.writeInt32(int32(Polygon))
	w.writeFloat64s(0, 0, 25, 10)
	w.writeInt32(3)
	w.writeInt32(15)
	w.writeInt32(0)
	w.writeInt32(5)
	w.writeInt32(10)
	for _, r := range []orb.Ring{square10, other, hole2to8} {
		for _, p := range r {
			w.writeFloat64s(p[0], p[1])
		}
	}

	_, got, err := decodeBody(w.Bytes())
	if err != nil {
		t.Fatalf("decodeBody failed: %v", err)
	}
	want := orb.MultiPolygon{{square10, hole2to8}, {other}}
	if diff := cmp.Diff(want, got.Geometry); diff != "" {
		t.Errorf("geometry mismatch (-want +got):\n%s", diff)
	}
}
