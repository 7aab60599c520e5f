package views

import (
	"bytes"
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// SchemaVersion is the persisted document format version. Documents
// carrying any other version load as absent.
const SchemaVersion = 1

// Bag is the opaque payload attached to nodes and edges. Key order is
// preserved across load and save so that UI-attached fields round-trip
// byte-identically; reconciliation only ever touches the "title" and
// "content" keys of managed nodes.
type Bag = orderedmap.OrderedMap[string, any]

// NewBag returns an empty payload bag.
func NewBag() *Bag { return orderedmap.New[string, any]() }

// Position is a node's top-left corner in canvas pixels.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one card, frame, or annotation on a view.
//
// Managed nodes (types "note" and "file") are owned by the view
// builders; everything else ("frame", "text", "link", unknown types)
// is foreign and survives rebuilds untouched. Parent, when set, must
// name another node in the same document; Extent is either "parent"
// or empty.
type Node struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Position Position `json:"position"`
	Data     *Bag     `json:"data"`
	Parent   string   `json:"parentNode,omitempty"`
	Extent   string   `json:"extent,omitempty"`
	Style    *Bag     `json:"style,omitempty"`
}

// Edge connects two nodes. An edge survives a rebuild only while both
// endpoints do.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type,omitempty"`
	Data   *Bag   `json:"data"`
	Label  any    `json:"label,omitempty"`
	Style  *Bag   `json:"style,omitempty"`
}

// Options carries the kind-specific query parameters persisted with a
// document. Pointer fields distinguish "unset" from explicit false/zero
// so a stored recursive=false is not clobbered by defaults.
type Options struct {
	Recursive *bool `json:"recursive,omitempty"`
	Limit     *int  `json:"limit,omitempty"`
}

// Document is the persisted artifact for one view.
type Document struct {
	SchemaVersion int     `json:"schema_version"`
	ViewID        string  `json:"view_id"`
	Kind          Kind    `json:"kind"`
	Selector      string  `json:"selector"`
	Title         string  `json:"title"`
	Options       Options `json:"options"`
	Nodes         []Node  `json:"nodes"`
	Edges         []Edge  `json:"edges"`
}

// Node returns the node with the given id, or nil.
func (d *Document) Node(id string) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

// Sanitize normalizes a document in place so that saving semantically
// identical content always produces identical bytes: nil bags become
// empty ones, nil slices become empty, unrecognized extent values are
// dropped, and parent references to nodes absent from the document are
// cleared rather than persisted dangling.
func (d *Document) Sanitize() {
	ids := make(map[string]bool, len(d.Nodes))
	for i := range d.Nodes {
		ids[d.Nodes[i].ID] = true
	}

	if d.Nodes == nil {
		d.Nodes = []Node{}
	}
	for i := range d.Nodes {
		n := &d.Nodes[i]
		if n.Data == nil {
			n.Data = NewBag()
		}
		if n.Parent != "" && !ids[n.Parent] {
			n.Parent = ""
		}
		if n.Extent != "parent" {
			n.Extent = ""
		}
		if n.Parent == "" {
			n.Extent = ""
		}
	}

	if d.Edges == nil {
		d.Edges = []Edge{}
	}
	for i := range d.Edges {
		if d.Edges[i].Data == nil {
			d.Edges[i].Data = NewBag()
		}
	}
}

// Clone returns a deep copy. Bag values themselves are shared; this
// package treats them as immutable once attached.
func (d *Document) Clone() *Document {
	out := *d
	out.Nodes = make([]Node, len(d.Nodes))
	for i, n := range d.Nodes {
		n.Data = copyBag(n.Data)
		n.Style = copyBag(n.Style)
		out.Nodes[i] = n
	}
	out.Edges = make([]Edge, len(d.Edges))
	for i, e := range d.Edges {
		e.Data = copyBag(e.Data)
		e.Style = copyBag(e.Style)
		out.Edges[i] = e
	}
	return &out
}

func copyBag(b *Bag) *Bag {
	if b == nil {
		return nil
	}
	out := NewBag()
	for p := b.Oldest(); p != nil; p = p.Next() {
		out.Set(p.Key, p.Value)
	}
	return out
}

// bagValue reads one key from a possibly nil bag.
func bagValue(b *Bag, key string) (any, bool) {
	if b == nil {
		return nil, false
	}
	return b.Get(key)
}

// contentEqual reports whether two documents hold the same sanitized
// node and edge sets. Marshaling both and comparing bytes is exact
// because struct field order is fixed and bags preserve key order.
func contentEqual(a, b *Document) bool {
	return bytes.Equal(marshalContent(a), marshalContent(b))
}

func marshalContent(d *Document) []byte {
	c := d.Clone()
	c.Sanitize()
	raw, err := json.Marshal(struct {
		Nodes []Node `json:"nodes"`
		Edges []Edge `json:"edges"`
	}{c.Nodes, c.Edges})
	if err != nil {
		return nil
	}
	return raw
}
