// Package layout computes positions for view nodes that have none yet.
// Both engines are pure and synchronous: the skyline packer reflows a
// flat batch of items, the frame planner builds the initial two-level
// layout for a folder's first materialization.
package layout

import (
	"math"
	"sort"
)

// Grid is the snap unit in pixels. Every position produced by this
// package is a multiple of Grid.
const Grid = 20

// Pad is the spacing reserved around each packed item, in pixels.
const Pad = 20

// Box is an item to place: an id plus its estimated pixel footprint.
// Sizes are per-type estimates supplied by the caller, not measurements.
type Box struct {
	ID string
	W  float64
	H  float64
}

// Point is a grid-snapped position in pixels.
type Point struct {
	X float64
	Y float64
}

type cellBox struct {
	id   string
	w, h int
}

type cellPoint struct {
	x, y int
}

// Pack computes non-overlapping grid-aligned positions for the given
// items using a skyline bin-packing heuristic.
//
// A single fixed row width tends to produce either tall-thin or
// wide-flat results, so a range of candidate widths around a target
// column count (≈ sqrt of the item count) is scanned; each candidate is
// scored by area plus a symmetric penalty for straying from the target
// width, and the best placement wins. Output is deterministic for a
// fixed input, including the id-based tie-breaks.
func Pack(items []Box) map[string]Point {
	if len(items) == 0 {
		return map[string]Point{}
	}

	cells := make([]cellBox, len(items))
	maxItemW := 1
	for i, it := range items {
		cw := cellsFor(it.W)
		ch := cellsFor(it.H)
		cells[i] = cellBox{id: it.ID, w: cw, h: ch}
		if cw > maxItemW {
			maxItemW = cw
		}
	}

	// Largest footprint first; ties fall back to id order.
	sort.Slice(cells, func(i, j int) bool {
		ai := cells[i].w * cells[i].h
		aj := cells[j].w * cells[j].h
		if ai != aj {
			return ai > aj
		}
		return cells[i].id < cells[j].id
	})

	targetCols := int(math.Round(math.Sqrt(float64(len(items)))))
	if targetCols < 2 {
		targetCols = 2
	}
	if targetCols > 8 {
		targetCols = 8
	}
	targetWidth := targetCols * maxItemW

	span := targetCols * 3
	if span < 6 {
		span = 6
	}
	start := targetWidth - span/2
	if start < maxItemW {
		start = maxItemW
	}

	var best map[string]cellPoint
	bestScore := 0
	for w := start; w < start+span; w++ {
		placed, height := packWidth(cells, w)
		penalty := targetWidth - w
		if penalty < 0 {
			penalty = -penalty
		}
		score := height*w + penalty*height*2
		if best == nil || score < bestScore {
			best = placed
			bestScore = score
		}
	}

	out := make(map[string]Point, len(best))
	for id, p := range best {
		out[id] = Point{X: float64(p.x * Grid), Y: float64(p.y * Grid)}
	}
	return out
}

// packWidth runs one skyline pass at the given row width (in cells) and
// returns the per-item cell positions plus the resulting max height.
func packWidth(items []cellBox, width int) (map[string]cellPoint, int) {
	heights := make([]int, width)
	out := make(map[string]cellPoint, len(items))
	maxH := 0

	for _, it := range items {
		w := it.w
		if w > width {
			w = width
		}

		// Scan every offset that fits; keep the one with the lowest
		// resulting top, leftmost on ties.
		bestX := 0
		bestTop := math.MaxInt
		for x := 0; x+w <= width; x++ {
			top := 0
			for c := x; c < x+w; c++ {
				if heights[c] > top {
					top = heights[c]
				}
			}
			if top < bestTop {
				bestTop = top
				bestX = x
			}
		}

		for c := bestX; c < bestX+w; c++ {
			heights[c] = bestTop + it.h
		}
		out[it.id] = cellPoint{x: bestX, y: bestTop}
		if bestTop+it.h > maxH {
			maxH = bestTop + it.h
		}
	}
	return out, maxH
}

// cellsFor converts a pixel extent plus padding into whole grid cells.
func cellsFor(px float64) int {
	n := int(math.Ceil((px + Pad) / Grid))
	if n < 1 {
		n = 1
	}
	return n
}
