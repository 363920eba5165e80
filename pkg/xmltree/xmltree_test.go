package xmltree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tokens := Tokenize("<a>\r\n  <b x=\"1\">hi</b>\n</a>")
	assert.Equal(t, []string{"<a>", "  ", `<b x="1">`, "hi", "</b>", "</a>"}, tokens)
}

func TestParse_RepeatedSiblings(t *testing.T) {
	doc, err := Parse(`<?xml version="1.0"?>
<root>
  <item id="a">one</item>
  <other>x</other>
  <item id="b">two</item>
  <item id="c">three</item>
</root>`)
	require.NoError(t, err)

	root := doc.Child("root")
	require.NotNil(t, root)
	require.Equal(t, 3, root.Count("item"))

	for i, want := range []struct{ id, text string }{{"a", "one"}, {"b", "two"}, {"c", "three"}} {
		assert.Equal(t, want.text, root.TextAt("item", i))
		assert.Equal(t, want.id, root.Attrs("item", i)["id"])
	}
	assert.False(t, root.Has("item", 3))
	assert.Equal(t, "x", root.Text("other"))
}

func TestParse_IndicesAreScopedToParent(t *testing.T) {
	doc, err := Parse(`<r><g><v>1</v><v>2</v></g><g><v>3</v></g></r>`)
	require.NoError(t, err)

	groups := doc.Child("r").Children("g")
	require.Len(t, groups, 2)
	assert.Equal(t, 2, groups[0].Count("v"))
	assert.Equal(t, 1, groups[1].Count("v"))
	assert.Equal(t, "3", groups[1].TextAt("v", 0))
}

func TestParse_SelfClosingAndEmpty(t *testing.T) {
	doc, err := Parse(`<r><a/><b></b><c k='v' j="w"/></r>`)
	require.NoError(t, err)

	r := doc.Child("r")
	assert.True(t, r.Has("a", 0))
	assert.True(t, r.Has("b", 0))
	assert.Equal(t, map[string]string{"k": "v", "j": "w"}, r.Attrs("c", 0))

	text, err := r.LookupText(K("b", 0))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestParse_AttributesAfterAnyWhitespace(t *testing.T) {
	doc, err := Parse("<r><a\tx=\"1\"/><b\n  y='2'\r\n  z=\"3\"></b></r>")
	require.NoError(t, err)

	r := doc.Child("r")
	assert.True(t, r.Has("a", 0))
	assert.Equal(t, map[string]string{"x": "1"}, r.Attrs("a", 0))
	assert.True(t, r.Has("b", 0))
	assert.Equal(t, map[string]string{"y": "2", "z": "3"}, r.Attrs("b", 0))
}

func TestParse_Errors(t *testing.T) {
	for name, doc := range map[string]string{
		"stray close": "</a>",
		"mismatch":    "<a><b></a>",
		"unclosed":    "<a><b></b>",
		"bad attr":    "<a x=1></a>",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(doc)
			var se *SyntaxError
			assert.ErrorAs(t, err, &se)
		})
	}
}

func TestLookup(t *testing.T) {
	doc, err := Parse(`<s:Envelope><s:Body><u:GetVolumeResponse><CurrentVolume>12</CurrentVolume></u:GetVolumeResponse></s:Body></s:Envelope>`)
	require.NoError(t, err)

	vol, err := doc.LookupText(K("s:Envelope", 0), K("s:Body", 0), K("u:GetVolumeResponse", 0), K("CurrentVolume", 0))
	require.NoError(t, err)
	assert.Equal(t, "12", vol)

	_, err = doc.Lookup(K("s:Envelope", 0), K("s:Body", 0), K("u:Missing", 0))
	var le *LookupError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 2, le.Missing)
	assert.Contains(t, le.Error(), "u:Missing[0]")

	key, _, ok := doc.Child("s:Envelope").Child("s:Body").FindLocal("GetVolumeResponse")
	assert.True(t, ok)
	assert.Equal(t, "u:GetVolumeResponse", key.Name)
}

func TestMarshal(t *testing.T) {
	out := Marshal(Fields{
		F("InstanceID", 0),
		F("Channel", "Master"),
		F("Nested", Fields{F("A", "x & y")}),
	})
	assert.Equal(t, `<InstanceID>0</InstanceID><Channel>Master</Channel><Nested><A>x &amp; y</A></Nested>`, out)
}

func TestMarshalParseRoundTrip(t *testing.T) {
	in := Fields{
		F("InstanceID", "0"),
		F("Unit", "REL_TIME"),
		F("Target", "0:01:30"),
		F("Speed", "1"),
	}

	doc, err := Parse("<args>" + Marshal(in) + "</args>")
	require.NoError(t, err)

	args := doc.Child("args")
	require.Equal(t, len(in), args.Len())
	for _, f := range in {
		assert.Equal(t, f.Value, args.Text(f.Name), f.Name)
	}
}

func TestMarshalParse_EntitiesStayEscaped(t *testing.T) {
	in := "http://h/a?x=1&y=2 <b>"

	doc, err := Parse("<args>" + Marshal(Fields{F("URI", in)}) + "</args>")
	require.NoError(t, err)

	raw := doc.Child("args").Text("URI")
	assert.Equal(t, "http://h/a?x=1&amp;y=2 &lt;b&gt;", raw)
	assert.Equal(t, in, Unescape(raw))
}

func TestParseEmbedded(t *testing.T) {
	doc, err := ParseEmbedded(`&lt;Event&gt;&lt;InstanceID val=&quot;0&quot;&gt;&lt;TransportState val=&quot;PLAYING&quot;/&gt;&lt;/InstanceID&gt;&lt;/Event&gt;`)
	require.NoError(t, err)

	inst, err := doc.LookupNode(K("Event", 0), K("InstanceID", 0))
	require.NoError(t, err)
	assert.Equal(t, "PLAYING", inst.Attrs("TransportState", 0)["val"])
	assert.Equal(t, "0", doc.Child("Event").Attrs("InstanceID", 0)["val"])
}

func TestFieldsWith(t *testing.T) {
	fs := Fields{F("Speed", 1)}
	withID := fs.With("InstanceID", 0)
	assert.Len(t, fs, 1)
	assert.Len(t, withID, 2)

	replaced := withID.With("Speed", 2)
	v, ok := replaced.Get("Speed")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}
