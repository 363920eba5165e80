package flagargs

import (
	"testing"

	"github.com/matryer/is"
)

func TestOutputFormat(t *testing.T) {
	is := is.New(t)

	var o OutputFormat
	is.NoErr(o.Set("json"))
	is.Equal(o.Format, "json")
	is.Equal(len(o.Opts), 0)

	is.NoErr(o.Set("json=compact"))
	is.True(o.Has("compact"))
	is.Equal(o.String(), "json=compact")

	is.True(o.Set("json=pretty") != nil)
	is.True(o.Set("yaml") != nil)
}

func TestVolume(t *testing.T) {
	is := is.New(t)

	var v Volume
	is.NoErr(v.Set("30"))
	is.Equal(v.Apply(70), 30)
	is.True(!v.Relative)

	is.NoErr(v.Set("+5"))
	is.Equal(v.Apply(70), 75)
	is.Equal(v.String(), "+5")

	is.NoErr(v.Set("-10"))
	is.Equal(v.Apply(70), 60)
	is.Equal(v.String(), "-10")

	is.True(v.Set("loud") != nil)
}
