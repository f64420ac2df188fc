package shapefile

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// spatialIndex keeps the extent of every record and answers bounding box
// queries through an R-tree. The tree is rebuilt on the next query after any
// change, since inserts and deletes renumber every later fid.
type spatialIndex struct {
	extents   []Extent
	tree      *rtreego.Rtree
	tolerance float64
}

// indexedRecord wraps a record for R-tree storage.
type indexedRecord struct {
	fid  int
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (r *indexedRecord) Bounds() rtreego.Rect {
	return r.rect
}

func newSpatialIndex(extents []Extent, tolerance float64) *spatialIndex {
	return &spatialIndex{extents: extents, tolerance: tolerance}
}

// rect converts a bound to an R-tree rectangle. Point and axis-aligned line
// boxes are padded to the tolerance; the R-tree rejects zero lengths.
func (x *spatialIndex) rect(b orb.Bound) rtreego.Rect {
	width := b.Max[0] - b.Min[0]
	height := b.Max[1] - b.Min[1]
	if width < x.tolerance {
		width = x.tolerance
	}
	if height < x.tolerance {
		height = x.tolerance
	}
	rect, _ := rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, []float64{width, height})
	return rect
}

func (x *spatialIndex) build() {
	objs := make([]rtreego.Spatial, 0, len(x.extents))
	for fid, e := range x.extents {
		if e.Empty {
			continue
		}
		objs = append(objs, &indexedRecord{fid: fid, rect: x.rect(e.Bound)})
	}
	x.tree = rtreego.NewTree(2, 25, 50, objs...)
}

// search returns the fids whose boxes intersect b, in ascending order.
// Boxes that only touch b count as intersecting: the R-tree query is widened
// on every side and candidates are checked against their stored bounds.
func (x *spatialIndex) search(b orb.Bound) []int {
	if x.tree == nil {
		x.build()
	}
	query := orb.Bound{
		Min: orb.Point{x.widen(b.Min[0], -1), x.widen(b.Min[1], -1)},
		Max: orb.Point{x.widen(b.Max[0], 1), x.widen(b.Max[1], 1)},
	}
	found := x.tree.SearchIntersect(x.rect(query))
	fids := make([]int, 0, len(found))
	for _, s := range found {
		fid := s.(*indexedRecord).fid
		if x.extents[fid].Bound.Intersects(b) {
			fids = append(fids, fid)
		}
	}
	sort.Ints(fids)
	return fids
}

// widen moves v by the tolerance in direction dir, and by at least one ulp.
func (x *spatialIndex) widen(v float64, dir float64) float64 {
	return math.Nextafter(v+dir*x.tolerance, math.Inf(int(dir)))
}

// extent returns the union of all record extents.
func (x *spatialIndex) extent() Extent {
	total := Extent{Empty: true}
	for _, e := range x.extents {
		total = total.Union(e)
	}
	return total
}

// splice mirrors a record splice: remove extents at fid, then insert the
// replacement when non-nil.
func (x *spatialIndex) splice(fid, remove int, replacement *Extent) {
	out := make([]Extent, 0, len(x.extents)-remove+1)
	out = append(out, x.extents[:fid]...)
	if replacement != nil {
		out = append(out, *replacement)
	}
	x.extents = append(out, x.extents[fid+remove:]...)
	x.tree = nil
}
