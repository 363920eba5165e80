package flagargs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type OutputFormat struct {
	Format string   `mapstructure:"format" yaml:"format"`
	Opts   []string `mapstructure:"opts" yaml:"opts"`
}

func (o *OutputFormat) String() string {
	s := o.Format
	if 0 < len(o.Opts) {
		s += "=" + strings.Join(o.Opts, ",")
	}
	return s
}

func (o *OutputFormat) Set(v string) error {
	switch {
	case v == "":
		o.Format = ""
		o.Opts = nil
		return nil
	case strings.HasPrefix(v, "json"):
		o.Format = "json"
		o.Opts = nil
		parts := strings.Split(v, "=")
		if len(parts) < 2 {
			return nil
		}
		for _, opt := range strings.Split(parts[1], ",") {
			if opt != "compact" {
				return fmt.Errorf("invalid json option %q", opt)
			}
			o.Opts = append(o.Opts, opt)
		}
		return nil
	}
	return errors.New(`must be "json[=compact]"`)
}

func (o *OutputFormat) Type() string {
	return "string"
}

func (o *OutputFormat) Has(opt string) bool {
	for _, v := range o.Opts {
		if v == opt {
			return true
		}
	}
	return false
}

// Volume is an absolute level such as 30, or a relative change such as +5
// or -5.
type Volume struct {
	Level    int
	Relative bool
}

func (v *Volume) String() string {
	if v.Relative && 0 <= v.Level {
		return "+" + strconv.Itoa(v.Level)
	}
	return strconv.Itoa(v.Level)
}

func (v *Volume) Set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("empty volume")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid volume %q", s)
	}
	v.Level = n
	v.Relative = s[0] == '+' || s[0] == '-'
	return nil
}

func (v *Volume) Type() string {
	return "volume"
}

// Apply returns the level to set given the current level.
func (v *Volume) Apply(current int) int {
	if v.Relative {
		return current + v.Level
	}
	return v.Level
}
