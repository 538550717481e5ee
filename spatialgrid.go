package talon

import (
	"math"
	"sort"

	"github.com/akmonengine/talon/actor"
	"github.com/akmonengine/talon/pair"
	"github.com/go-gl/mathgl/mgl64"
)

// CellKey - coordinates of a cell in 3D space
type CellKey struct {
	X, Y, Z int
}

// Cell - container of body slots in a cell
type Cell struct {
	slots []int
}

// BodyPair - pair of collidable references whose bounds overlap
type BodyPair struct {
	A pair.Reference
	B pair.Reference
}

// SpatialGrid - uniform spatial hash grid for the broad phase. Bounds are
// inflated by each collidable's speculative margin so near-contacts reach
// the narrow phase before they touch.
type SpatialGrid struct {
	cellSize float64
	cells    []Cell
	cellMask int
	bounds   []actor.AABB
	refs     []pair.Reference
}

// NewSpatialGrid creates a grid with the given cell size; numCells is
// rounded up to a power of two.
func NewSpatialGrid(cellSize float64, numCells int) *SpatialGrid {
	numCells = nextPowerOfTwo(numCells)

	cells := make([]Cell, numCells)
	for i := range cells {
		cells[i].slots = make([]int, 0, 8)
	}

	return &SpatialGrid{
		cellSize: cellSize,
		cells:    cells,
		cellMask: numCells - 1,
	}
}

func nextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}

// Update rebuilds the grid from every body set. Sleeping bodies stay in the
// grid so an active body drifting into a sleeping island can wake it.
func (sg *SpatialGrid) Update(bodies *actor.Bodies, shapes *actor.Shapes) {
	sg.clear()
	sg.bounds = sg.bounds[:0]
	sg.refs = sg.refs[:0]
	index := 0
	for setIndex := range bodies.Sets {
		set := bodies.Sets[setIndex].Bodies
		for slot := range set {
			body := &set[slot]
			bounds := shapes.Bounds(body.Collidable.Shape, body.Pose).
				Expand(body.Collidable.SpeculativeMargin)
			sg.bounds = append(sg.bounds, bounds)
			sg.refs = append(sg.refs, pair.NewReference(body.Handle, body.Mobility))
			sg.insert(index, bounds)
			index++
		}
	}
	sg.sortCells()
}

func (sg *SpatialGrid) insert(slot int, bounds actor.AABB) {
	minCell := sg.worldToCell(bounds.Min)
	maxCell := sg.worldToCell(bounds.Max)

	for x := minCell.X; x <= maxCell.X; x++ {
		for y := minCell.Y; y <= maxCell.Y; y++ {
			for z := minCell.Z; z <= maxCell.Z; z++ {
				cellIdx := sg.hashCell(CellKey{x, y, z})
				sg.cells[cellIdx].slots = append(sg.cells[cellIdx].slots, slot)
			}
		}
	}
}

func (sg *SpatialGrid) clear() {
	for i := range sg.cells {
		sg.cells[i].slots = sg.cells[i].slots[:0]
	}
}

func (sg *SpatialGrid) sortCells() {
	for i := range sg.cells {
		if len(sg.cells[i].slots) > 1 {
			sort.Ints(sg.cells[i].slots)
		}
	}
}

// CollectPairs appends every overlapping pair of all body sets to out,
// deduplicated and in deterministic slot order.
func (sg *SpatialGrid) CollectPairs(out []BodyPair) []BodyPair {
	seen := make([]bool, len(sg.bounds))
	clearSeen := make([]bool, len(sg.bounds))

	for slot := range sg.bounds {
		copy(seen, clearSeen)
		bounds := sg.bounds[slot]
		minCell := sg.worldToCell(bounds.Min)
		maxCell := sg.worldToCell(bounds.Max)

		for x := minCell.X; x <= maxCell.X; x++ {
			for y := minCell.Y; y <= maxCell.Y; y++ {
				for z := minCell.Z; z <= maxCell.Z; z++ {
					cellIdx := sg.hashCell(CellKey{x, y, z})

					for _, otherSlot := range sg.cells[cellIdx].slots {
						// Deterministic order, no duplicates
						if otherSlot <= slot || seen[otherSlot] {
							continue
						}
						seen[otherSlot] = true

						refA, refB := sg.refs[slot], sg.refs[otherSlot]
						if refA.Mobility() == actor.MobilityStatic && refB.Mobility() == actor.MobilityStatic {
							continue
						}
						if bounds.Overlaps(sg.bounds[otherSlot]) {
							out = append(out, BodyPair{A: refA, B: refB})
						}
					}
				}
			}
		}
	}
	return out
}

func (sg *SpatialGrid) worldToCell(pos mgl64.Vec3) CellKey {
	return CellKey{
		X: int(math.Floor(pos.X() / sg.cellSize)),
		Y: int(math.Floor(pos.Y() / sg.cellSize)),
		Z: int(math.Floor(pos.Z() / sg.cellSize)),
	}
}

func (sg *SpatialGrid) hashCell(key CellKey) int {
	h := (key.X * 73856093) ^ (key.Y * 19349663) ^ (key.Z * 83492791)
	return h & sg.cellMask
}
