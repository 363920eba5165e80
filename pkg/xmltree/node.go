// Package xmltree is a small streaming XML codec for device description and
// SOAP documents.
//
// Parsed documents are ordered multimaps keyed by (tag, occurrence-index),
// where the index counts earlier siblings sharing the same tag under the same
// parent. Attributes of an element live next to it under "{tag}_attrs" with
// the same index.
package xmltree

import (
	"fmt"
	"strings"
)

// AttrsSuffix is appended to a tag name to form the key holding its attributes.
const AttrsSuffix = "_attrs"

// Key addresses a single entry in a Node.
type Key struct {
	Name  string
	Index int
}

func (k Key) String() string {
	return fmt.Sprintf("%s[%d]", k.Name, k.Index)
}

// K is shorthand for Key{name, index}.
func K(name string, index int) Key {
	return Key{Name: name, Index: index}
}

type Kind int

const (
	KindNode Kind = iota
	KindAttrs
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindAttrs:
		return "attrs"
	case KindText:
		return "text"
	}
	return "unknown"
}

// Value is one of a nested Node, an attribute map or leaf text.
type Value struct {
	kind  Kind
	node  *Node
	attrs map[string]string
	text  string
}

func NodeValue(n *Node) Value {
	return Value{kind: KindNode, node: n}
}

func AttrsValue(a map[string]string) Value {
	return Value{kind: KindAttrs, attrs: a}
}

func TextValue(s string) Value {
	return Value{kind: KindText, text: s}
}

func (v Value) Kind() Kind {
	return v.kind
}

// Node returns the nested node, or nil if v does not hold one.
func (v Value) Node() *Node {
	if v.kind != KindNode {
		return nil
	}
	return v.node
}

// Attrs returns the attribute map, or nil if v does not hold one.
func (v Value) Attrs() map[string]string {
	if v.kind != KindAttrs {
		return nil
	}
	return v.attrs
}

// Text returns the leaf text. An empty element yields the empty string.
func (v Value) Text() string {
	return v.text
}

// Node is an ordered multimap from Key to Value.
type Node struct {
	keys   []Key
	values map[Key]Value
}

func NewNode() *Node {
	return &Node{
		values: make(map[Key]Value),
	}
}

// Set inserts or replaces the value at k, keeping the original position of
// an existing key.
func (n *Node) Set(k Key, v Value) {
	if n.values == nil {
		n.values = make(map[Key]Value)
	}
	if _, exists := n.values[k]; !exists {
		n.keys = append(n.keys, k)
	}
	n.values[k] = v
}

func (n *Node) Get(name string, index int) (Value, bool) {
	if n == nil {
		return Value{}, false
	}
	v, ok := n.values[Key{Name: name, Index: index}]
	return v, ok
}

func (n *Node) Has(name string, index int) bool {
	_, ok := n.Get(name, index)
	return ok
}

// Len is the number of entries, attribute entries included.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	return len(n.keys)
}

// Keys returns the entry keys in document order.
func (n *Node) Keys() []Key {
	if n == nil {
		return nil
	}
	out := make([]Key, len(n.keys))
	copy(out, n.keys)
	return out
}

// Count returns how many entries named name exist directly under n.
func (n *Node) Count(name string) int {
	if n == nil {
		return 0
	}
	c := 0
	for _, k := range n.keys {
		if k.Name == name {
			c++
		}
	}
	return c
}

// ChildAt returns the nested node at (name, index). Leaf text elements have
// no nested node and yield nil.
func (n *Node) ChildAt(name string, index int) *Node {
	v, _ := n.Get(name, index)
	return v.Node()
}

func (n *Node) Child(name string) *Node {
	return n.ChildAt(name, 0)
}

// Children returns every nested node named name, in index order.
func (n *Node) Children(name string) []*Node {
	var out []*Node
	for i := 0; i < n.Count(name); i++ {
		if c := n.ChildAt(name, i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// TextAt returns the text of (name, index), or "" when absent.
func (n *Node) TextAt(name string, index int) string {
	v, _ := n.Get(name, index)
	return v.Text()
}

func (n *Node) Text(name string) string {
	return n.TextAt(name, 0)
}

// Attrs returns the attributes of the index-th occurrence of name.
func (n *Node) Attrs(name string, index int) map[string]string {
	v, _ := n.Get(name+AttrsSuffix, index)
	return v.Attrs()
}

// FindLocal returns the first child node whose tag, stripped of any
// namespace prefix, equals local.
func (n *Node) FindLocal(local string) (Key, *Node, bool) {
	if n == nil {
		return Key{}, nil, false
	}
	for _, k := range n.keys {
		if LocalName(k.Name) != local {
			continue
		}
		if v := n.values[k]; v.kind == KindNode {
			return k, v.node, true
		}
	}
	return Key{}, nil, false
}

// Lookup walks path from n and returns the value found at its end.
func (n *Node) Lookup(path ...Key) (Value, error) {
	cur := n
	for i, k := range path {
		v, ok := cur.Get(k.Name, k.Index)
		if !ok {
			return Value{}, &LookupError{Path: path, Missing: i}
		}
		if i == len(path)-1 {
			return v, nil
		}
		if cur = v.Node(); cur == nil {
			return Value{}, &LookupError{Path: path, Missing: i + 1}
		}
	}
	return NodeValue(n), nil
}

// LookupNode is Lookup for paths that must end on a nested node.
func (n *Node) LookupNode(path ...Key) (*Node, error) {
	v, err := n.Lookup(path...)
	if err != nil {
		return nil, err
	}
	if v.Kind() != KindNode {
		return nil, &LookupError{Path: path, Missing: len(path) - 1}
	}
	return v.Node(), nil
}

// LookupText is Lookup for paths that must end on leaf text.
func (n *Node) LookupText(path ...Key) (string, error) {
	v, err := n.Lookup(path...)
	if err != nil {
		return "", err
	}
	switch v.Kind() {
	case KindText:
		return v.Text(), nil
	case KindNode:
		// <tag></tag> and <tag/> parse as an empty node
		if v.Node().Len() == 0 {
			return "", nil
		}
	}
	return "", &LookupError{Path: path, Missing: len(path) - 1}
}

// LocalName strips a namespace prefix such as "s:" from a tag name.
func LocalName(tag string) string {
	if i := strings.IndexByte(tag, ':'); i >= 0 {
		return tag[i+1:]
	}
	return tag
}

// LookupError reports a path absent from a parsed tree.
type LookupError struct {
	Path    []Key
	Missing int
}

func (e *LookupError) Error() string {
	parts := make([]string, len(e.Path))
	for i, k := range e.Path {
		parts[i] = k.String()
	}
	return fmt.Sprintf("xml path %s: missing %s", strings.Join(parts, "/"), e.Path[e.Missing])
}
