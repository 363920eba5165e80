package upnp

import (
	"fmt"
	"strings"

	"github.com/forestnode-io/knob/pkg/xmltree"
)

// Properties flattens an event or action response into name/value pairs.
// Text elements map to their text, state variables carried in a val
// attribute map to that attribute, and container elements are descended.
// Variables repeated per channel are named Name.Channel.
func Properties(n *xmltree.Node) map[string]string {
	out := make(map[string]string)
	if n != nil {
		flatten(n, out)
	}
	return out
}

func flatten(n *xmltree.Node, out map[string]string) {
	for _, k := range n.Keys() {
		v, _ := n.Get(k.Name, k.Index)
		switch v.Kind() {
		case xmltree.KindText:
			setProperty(out, propertyName(n, k), strings.TrimSpace(xmltree.Unescape(v.Text())))
		case xmltree.KindAttrs:
			base := xmltree.K(strings.TrimSuffix(k.Name, xmltree.AttrsSuffix), k.Index)
			if elem, _ := n.Get(base.Name, base.Index); elem.Kind() == xmltree.KindNode && elem.Node().Len() > 0 {
				// InstanceID and friends
				continue
			}
			if val, ok := v.Attrs()["val"]; ok {
				out[propertyName(n, base)] = xmltree.Unescape(val)
			}
		case xmltree.KindNode:
			child := v.Node()
			if child.Len() == 0 {
				setProperty(out, propertyName(n, k), "")
				continue
			}
			flatten(child, out)
		}
	}
}

func setProperty(out map[string]string, name, value string) {
	if _, ok := out[name]; ok && value == "" {
		return
	}
	out[name] = value
}

func propertyName(parent *xmltree.Node, k xmltree.Key) string {
	name := xmltree.LocalName(k.Name)
	if channel := parent.Attrs(k.Name, k.Index)["channel"]; channel != "" {
		return name + "." + channel
	}
	if k.Index > 0 {
		return fmt.Sprintf("%s[%d]", name, k.Index)
	}
	return name
}
