package layout

import (
	"math"
	"sort"
	"strings"
)

// Child card cell used inside frames. Every child occupies one uniform
// cell regardless of its estimated size, which keeps frame interiors
// regular.
const (
	CellW = 340
	CellH = 180
)

const (
	framePad  = 40 // interior padding between frame border and cells
	childGap  = 40 // gap between adjacent cells inside a frame
	frameGap  = 80 // spacing between frames in the macro grid
	macroCols = 2
)

// GroupItem is one item to place in the initial frame-grouped layout.
// Group is the item's first path segment below the folder ("" for items
// sitting directly in it); Name orders items within their group.
type GroupItem struct {
	ID    string
	Group string
	Name  string
}

// FramePlacement is the absolute position and size of one group frame.
// Members lists the frame's item ids in layout order.
type FramePlacement struct {
	Group   string
	X, Y    float64
	W, H    float64
	Members []string
}

// ChildPlacement positions one item relative to its frame's origin.
type ChildPlacement struct {
	Group string
	X, Y  float64
}

// FramePlan is the complete initial layout: frames in macro-grid order
// plus per-item placements keyed by item id.
type FramePlan struct {
	Frames   []FramePlacement
	Children map[string]ChildPlacement
}

// PlanFrames builds the initial layout for a folder view: items are
// grouped by their first path segment, each group gets a frame whose
// interior is a uniform cell grid, and the frames themselves flow down
// a fixed two-column macro grid. Items with an empty Group share a root
// frame. Deterministic for a fixed input.
func PlanFrames(items []GroupItem) FramePlan {
	plan := FramePlan{Children: make(map[string]ChildPlacement, len(items))}
	if len(items) == 0 {
		return plan
	}

	byGroup := make(map[string][]GroupItem)
	for _, it := range items {
		byGroup[it.Group] = append(byGroup[it.Group], it)
	}

	groups := make([]string, 0, len(byGroup))
	for g := range byGroup {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		li, lj := strings.ToLower(groups[i]), strings.ToLower(groups[j])
		if li != lj {
			return li < lj
		}
		return groups[i] < groups[j]
	})

	// Size each frame and lay out its children relative to the frame.
	frames := make([]FramePlacement, 0, len(groups))
	for _, g := range groups {
		members := byGroup[g]
		sort.Slice(members, func(i, j int) bool {
			li, lj := strings.ToLower(members[i].Name), strings.ToLower(members[j].Name)
			if li != lj {
				return li < lj
			}
			if members[i].Name != members[j].Name {
				return members[i].Name < members[j].Name
			}
			return members[i].ID < members[j].ID
		})

		cols := innerCols(len(members))
		rows := (len(members) + cols - 1) / cols
		if rows < 1 {
			rows = 1
		}

		memberIDs := make([]string, len(members))
		for i, m := range members {
			col := i % cols
			row := i / cols
			plan.Children[m.ID] = ChildPlacement{
				Group: g,
				X:     float64(framePad + col*(CellW+childGap)),
				Y:     float64(framePad + row*(CellH+childGap)),
			}
			memberIDs[i] = m.ID
		}

		frames = append(frames, FramePlacement{
			Group:   g,
			W:       float64(2*framePad + cols*CellW + (cols-1)*childGap),
			H:       float64(2*framePad + rows*CellH + (rows-1)*childGap),
			Members: memberIDs,
		})
	}

	// Two-column macro grid: columns share one width so the grid stays
	// regular, rows are as tall as their tallest frame.
	colW := 0.0
	for _, fr := range frames {
		if fr.W > colW {
			colW = fr.W
		}
	}

	y := 0.0
	for i := 0; i < len(frames); i += macroCols {
		rowH := 0.0
		for j := i; j < i+macroCols && j < len(frames); j++ {
			col := j - i
			frames[j].X = float64(col) * (colW + frameGap)
			frames[j].Y = y
			if frames[j].H > rowH {
				rowH = frames[j].H
			}
		}
		y += rowH + frameGap
	}

	plan.Frames = frames
	return plan
}

// innerCols picks the column count for a frame's interior grid,
// clamped to keep frames from growing arbitrarily wide.
func innerCols(n int) int {
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	if cols < 1 {
		cols = 1
	}
	if cols > 4 {
		cols = 4
	}
	return cols
}
