package output

import (
	"fmt"

	"github.com/forestnode-io/knob/pkg/events"
)

func runQuiet(o *output) {
	for e := range o.events {
		if f, ok := e.(*events.Failure); ok {
			fmt.Fprintln(o.errw, o.fail("error: "+f.Error()))
		}
	}
}
