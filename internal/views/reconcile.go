package views

import (
	"encoding/json"
	"math"

	"github.com/starford/othala/internal/layout"
)

// Item is one query hit a builder wants materialized as a node.
type Item struct {
	ID      string // node id; the vault-relative path of the hit
	Title   string
	Excerpt string
	IsNote  bool   // Markdown note card vs generic file card
	Group   string // first path segment below the folder, "" for direct children
	Name    string // base name, orders items within a frame
}

// buildConfig is the per-kind reconciliation behavior.
type buildConfig struct {
	managed     map[string]bool // node types this builder owns
	withContent bool            // builder supplies content excerpts
	frames      bool            // first build lays out with group frames
}

var (
	folderConfig = buildConfig{
		managed:     map[string]bool{"note": true, "file": true},
		withContent: true,
		frames:      true,
	}
	queryConfig = buildConfig{
		managed: map[string]bool{"note": true},
	}
)

// Estimated card footprints fed to the packer. The canvas renders real
// sizes; these only have to be in the right ballpark.
const (
	noteCardW, noteCardH = 340, 180
	fileCardW, fileCardH = 300, 120
)

// freshGap separates newly packed nodes from the surviving layout.
const freshGap = 2 * layout.Grid

// reconcile merges the current query results into the prior document
// and reports whether the result differs from what is persisted.
//
// Surviving nodes keep their document order, position, parent, and
// style; only their content-derived data fields are refreshed. Nodes of
// types the builder does not manage are carried over untouched. Edges
// survive only while both endpoints do. Items with no prior node are
// placed by a layout engine: the frame planner when no document existed
// at all, otherwise the skyline packer below the surviving bounding
// box.
func reconcile(id Identity, prior *Document, opts Options, items []Item, cfg buildConfig) (*Document, bool) {
	doc := &Document{
		SchemaVersion: SchemaVersion,
		ViewID:        id.ID,
		Kind:          id.Kind,
		Selector:      id.Selector,
		Title:         id.Title,
		Options:       opts,
		Nodes:         []Node{},
		Edges:         []Edge{},
	}

	if prior == nil {
		if cfg.frames {
			appendFramed(doc, items, cfg)
		} else {
			appendPacked(doc, items, 0, cfg)
		}
		doc.Sanitize()
		return doc, true
	}

	current := make(map[string]Item, len(items))
	for _, it := range items {
		current[it.ID] = it
	}

	// Pass 1: walk the prior document so surviving nodes keep their
	// order. Managed nodes absent from the query are dropped here.
	for i := range prior.Nodes {
		prev := &prior.Nodes[i]
		if !cfg.managed[prev.Type] {
			n := *prev
			n.Data = copyBag(prev.Data)
			n.Style = copyBag(prev.Style)
			doc.Nodes = append(doc.Nodes, n)
			continue
		}
		it, ok := current[prev.ID]
		if !ok {
			continue
		}
		n := *prev
		n.Data = copyBag(prev.Data)
		n.Style = copyBag(prev.Style)
		refreshContent(&n, it, cfg.withContent)
		doc.Nodes = append(doc.Nodes, n)
	}

	// Pass 2: genuinely new items, packed below everything kept.
	prevIDs := make(map[string]bool, len(prior.Nodes))
	for i := range prior.Nodes {
		prevIDs[prior.Nodes[i].ID] = true
	}
	var fresh []Item
	for _, it := range items {
		if !prevIDs[it.ID] {
			fresh = append(fresh, it)
		}
	}
	appendPacked(doc, fresh, offsetBelow(doc.Nodes), cfg)

	// Pass 3: prune edges whose endpoints did not survive.
	ids := make(map[string]bool, len(doc.Nodes))
	for i := range doc.Nodes {
		ids[doc.Nodes[i].ID] = true
	}
	for _, e := range prior.Edges {
		if ids[e.Source] && ids[e.Target] {
			e.Data = copyBag(e.Data)
			e.Style = copyBag(e.Style)
			doc.Edges = append(doc.Edges, e)
		}
	}

	doc.Sanitize()
	return doc, !contentEqual(prior, doc)
}

// itemNode synthesizes the node for an item that has no prior one.
func itemNode(it Item, withContent bool) Node {
	data := NewBag()
	data.Set("title", it.Title)
	if withContent {
		data.Set("content", it.Excerpt)
	}
	typ := "file"
	if it.IsNote {
		typ = "note"
	}
	return Node{ID: it.ID, Type: typ, Data: data}
}

// refreshContent updates the content-derived data keys and nothing
// else; the node's placement and styling belong to the user.
func refreshContent(n *Node, it Item, withContent bool) {
	if n.Data == nil {
		n.Data = NewBag()
	}
	n.Data.Set("title", it.Title)
	if withContent {
		n.Data.Set("content", it.Excerpt)
	}
}

// appendPacked skyline-packs items and appends their nodes, shifted
// down by offsetY.
func appendPacked(doc *Document, items []Item, offsetY float64, cfg buildConfig) {
	if len(items) == 0 {
		return
	}
	boxes := make([]layout.Box, len(items))
	for i, it := range items {
		w, h := estimate(it)
		boxes[i] = layout.Box{ID: it.ID, W: w, H: h}
	}
	points := layout.Pack(boxes)
	for _, it := range items {
		n := itemNode(it, cfg.withContent)
		p := points[it.ID]
		n.Position = Position{X: p.X, Y: p.Y + offsetY}
		doc.Nodes = append(doc.Nodes, n)
	}
}

// appendFramed materializes the initial frame-grouped layout: one frame
// node per group followed by its children, positioned relative to the
// frame and clipped to it.
func appendFramed(doc *Document, items []Item, cfg buildConfig) {
	if len(items) == 0 {
		return
	}
	groupItems := make([]layout.GroupItem, len(items))
	byID := make(map[string]Item, len(items))
	for i, it := range items {
		groupItems[i] = layout.GroupItem{ID: it.ID, Group: it.Group, Name: it.Name}
		byID[it.ID] = it
	}
	plan := layout.PlanFrames(groupItems)

	for _, fr := range plan.Frames {
		frameID := "frame:" + fr.Group
		label := fr.Group
		if fr.Group == "" {
			frameID = "frame:/"
			label = doc.Title
		}

		data := NewBag()
		data.Set("title", label)
		style := NewBag()
		style.Set("width", fr.W)
		style.Set("height", fr.H)
		doc.Nodes = append(doc.Nodes, Node{
			ID:       frameID,
			Type:     "frame",
			Position: Position{X: fr.X, Y: fr.Y},
			Data:     data,
			Style:    style,
		})

		for _, memberID := range fr.Members {
			ch := plan.Children[memberID]
			n := itemNode(byID[memberID], cfg.withContent)
			n.Position = Position{X: ch.X, Y: ch.Y}
			n.Parent = frameID
			n.Extent = "parent"
			doc.Nodes = append(doc.Nodes, n)
		}
	}
}

// estimate returns the assumed footprint for an item's card.
func estimate(it Item) (w, h float64) {
	if it.IsNote {
		return noteCardW, noteCardH
	}
	return fileCardW, fileCardH
}

// estimateNode returns the assumed footprint of an existing node, using
// the frame's styled size when present.
func estimateNode(n *Node) (w, h float64) {
	switch n.Type {
	case "frame":
		w, h = noteCardW, noteCardH
		if v, ok := bagValue(n.Style, "width"); ok {
			if f, ok := toFloat(v); ok {
				w = f
			}
		}
		if v, ok := bagValue(n.Style, "height"); ok {
			if f, ok := toFloat(v); ok {
				h = f
			}
		}
		return w, h
	case "file":
		return fileCardW, fileCardH
	default:
		return noteCardW, noteCardH
	}
}

// offsetBelow computes the grid-aligned Y at which freshly packed nodes
// start, just below the bounding box of the kept layout. Children
// positioned relative to a parent do not extend the box; their frame
// already covers them.
func offsetBelow(kept []Node) float64 {
	if len(kept) == 0 {
		return 0
	}
	maxY := 0.0
	for i := range kept {
		n := &kept[i]
		if n.Parent != "" {
			continue
		}
		_, h := estimateNode(n)
		if bottom := n.Position.Y + h; bottom > maxY {
			maxY = bottom
		}
	}
	return math.Ceil(maxY/layout.Grid)*layout.Grid + freshGap
}

func toFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case int:
		return float64(f), true
	case json.Number:
		n, err := f.Float64()
		return n, err == nil
	default:
		return 0, false
	}
}
