package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/matryer/is"
	"github.com/rs/zerolog"
)

func TestLevel(t *testing.T) {
	is := is.New(t)

	l, err := Level("")
	is.NoErr(err)
	is.Equal(l, zerolog.InfoLevel)

	l, err = Level("debug")
	is.NoErr(err)
	is.Equal(l, zerolog.DebugLevel)

	_, err = Level("loud")
	is.True(err != nil)
}

func TestNew(t *testing.T) {
	is := is.New(t)

	var buf bytes.Buffer
	l := New(&buf, zerolog.WarnLevel)
	l.Info().Msg("hidden")
	is.Equal(buf.Len(), 0)

	l.Warn().Str("room", "Kitchen").Msg("shown")
	is.True(bytes.Contains(buf.Bytes(), []byte(`"room":"Kitchen"`)))
}

func TestLogging_Stderr(t *testing.T) {
	is := is.New(t)
	t.Setenv("KNOB_LOG_DIR", t.TempDir())
	t.Setenv("KNOB_LOG_LEVEL", "warn")

	ctx, cleanup, err := Logging(context.Background())
	is.NoErr(err)
	defer cleanup()

	is.Equal(zerolog.Ctx(ctx).GetLevel(), zerolog.WarnLevel)
	is.Equal(Logger().GetLevel(), zerolog.WarnLevel)

	t.Setenv("KNOB_LOG_LEVEL", "nope")
	_, cleanup2, err := Logging(context.Background())
	defer cleanup2()
	is.True(err != nil)
}
