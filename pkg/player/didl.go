package player

import (
	"fmt"
	"strings"

	"github.com/forestnode-io/knob/pkg/xmltree"
)

type Track struct {
	Title         string `json:"title"`
	Artist        string `json:"artist"`
	Album         string `json:"album"`
	AlbumArt      string `json:"albumArt,omitempty"`
	URI           string `json:"uri,omitempty"`
	Position      string `json:"position,omitempty"`
	Duration      string `json:"duration,omitempty"`
	QueuePosition int    `json:"queuePosition"`
}

// Media describes the current source, e.g. a radio station or a queue.
type Media struct {
	Title  string `json:"title,omitempty"`
	Art    string `json:"art,omitempty"`
	Medium string `json:"medium,omitempty"`
	URI    string `json:"uri,omitempty"`
}

// parseDIDL decodes entity-encoded DIDL-Lite metadata into tracks, one per
// item. Relative album art is resolved against base.
func parseDIDL(encoded, base string) ([]Track, error) {
	doc, err := xmltree.ParseEmbedded(encoded)
	if err != nil {
		return nil, fmt.Errorf("unable to parse DIDL-Lite: %w", err)
	}
	_, didl, ok := doc.FindLocal("DIDL-Lite")
	if !ok {
		return nil, &xmltree.LookupError{Path: []xmltree.Key{xmltree.K("DIDL-Lite", 0)}}
	}

	var tracks []Track
	for _, item := range didl.Children("item") {
		t := Track{
			Title:    didlText(item, "dc:title"),
			Artist:   didlText(item, "dc:creator"),
			Album:    didlText(item, "upnp:album"),
			AlbumArt: absolute(didlText(item, "upnp:albumArtURI"), base),
			URI:      didlText(item, "res"),
			Duration: item.Attrs("res", 0)["duration"],
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// didlText reads a field that is still entity-encoded after the metadata
// itself has been decoded.
func didlText(item *xmltree.Node, name string) string {
	return strings.TrimSpace(xmltree.Unescape(item.Text(name)))
}

func absolute(uri, base string) string {
	if uri == "" || strings.Contains(uri, "://") {
		return uri
	}
	if !strings.HasPrefix(uri, "/") {
		uri = "/" + uri
	}
	return base + uri
}
