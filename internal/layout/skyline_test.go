package layout

import (
	"fmt"
	"math"
	"reflect"
	"testing"
)

func TestPackEmpty(t *testing.T) {
	got := Pack(nil)
	if len(got) != 0 {
		t.Fatalf("expected empty placement, got %v", got)
	}
}

func TestPackGridAligned(t *testing.T) {
	items := []Box{
		{ID: "a", W: 340, H: 180},
		{ID: "b", W: 300, H: 120},
		{ID: "c", W: 340, H: 180},
		{ID: "d", W: 120, H: 60},
	}
	got := Pack(items)
	if len(got) != len(items) {
		t.Fatalf("placed %d items, want %d", len(got), len(items))
	}
	for id, p := range got {
		if p.X < 0 || p.Y < 0 {
			t.Errorf("%s: negative position %+v", id, p)
		}
		if math.Mod(p.X, Grid) != 0 || math.Mod(p.Y, Grid) != 0 {
			t.Errorf("%s: position %+v not grid aligned", id, p)
		}
	}
}

func TestPackNoOverlap(t *testing.T) {
	var items []Box
	for i := 0; i < 30; i++ {
		w := 300.0 + float64(i%3)*40
		h := 120.0 + float64(i%4)*60
		items = append(items, Box{ID: fmt.Sprintf("n%02d", i), W: w, H: h})
	}
	got := Pack(items)

	type rect struct{ x1, y1, x2, y2 float64 }
	rects := make(map[string]rect, len(items))
	for _, it := range items {
		p, ok := got[it.ID]
		if !ok {
			t.Fatalf("item %s not placed", it.ID)
		}
		rects[it.ID] = rect{p.X, p.Y, p.X + it.W, p.Y + it.H}
	}
	for _, a := range items {
		for _, b := range items {
			if a.ID >= b.ID {
				continue
			}
			ra, rb := rects[a.ID], rects[b.ID]
			if ra.x1 < rb.x2 && rb.x1 < ra.x2 && ra.y1 < rb.y2 && rb.y1 < ra.y2 {
				t.Fatalf("items %s and %s overlap: %+v vs %+v", a.ID, b.ID, ra, rb)
			}
		}
	}
}

func TestPackDeterministic(t *testing.T) {
	items := []Box{
		{ID: "x", W: 340, H: 180},
		{ID: "y", W: 340, H: 180},
		{ID: "z", W: 300, H: 120},
	}
	first := Pack(items)
	for i := 0; i < 5; i++ {
		// Same input in a different order must yield the same result.
		shuffled := []Box{items[(i+1)%3], items[(i+2)%3], items[i%3]}
		if got := Pack(shuffled); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: placement differs:\n%v\nvs\n%v", i, got, first)
		}
	}
}

func TestPackSingleItemAtOrigin(t *testing.T) {
	got := Pack([]Box{{ID: "only", W: 340, H: 180}})
	p := got["only"]
	if p.X != 0 || p.Y != 0 {
		t.Fatalf("single item placed at %+v, want origin", p)
	}
}

func TestPackRoughlySquare(t *testing.T) {
	// 16 identical cards should spread over several columns rather
	// than stack into a single one.
	var items []Box
	for i := 0; i < 16; i++ {
		items = append(items, Box{ID: fmt.Sprintf("c%02d", i), W: 340, H: 180})
	}
	got := Pack(items)

	maxX, maxY := 0.0, 0.0
	for _, p := range got {
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	if maxX == 0 {
		t.Fatal("all items packed into a single column")
	}
	width := maxX + 340
	height := maxY + 180
	if ratio := height / width; ratio > 4 || ratio < 0.25 {
		t.Fatalf("layout badly unbalanced: %gx%g (ratio %g)", width, height, ratio)
	}
}
