package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/forestnode-io/knob/pkg/events"
)

func runHuman(o *output) {
	for e := range o.events {
		switch event := e.(type) {
		case *events.PlayerFound:
			fmt.Fprintf(o.stdout, "%s\t%s\t%s\n", event.SourceIP, event.HouseholdID, event.Location)
		case *events.Notification:
			fmt.Fprintf(o.stdout, "%s #%d %s\n", event.Service, event.Seq, event.Time.Format("15:04:05"))
			writeProperties(o, event.Properties)
		case *events.Result:
			writeResult(o, event)
		case *events.Failure:
			fmt.Fprintln(o.errw, o.fail("error: "+event.Error()))
		}
	}
}

func writeProperties(o *output, props map[string]string) {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(o.stdout, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "  %s\t%s\n", name, props[name])
	}
	tw.Flush()
}

func writeResult(o *output, r *events.Result) {
	switch v := r.Value.(type) {
	case string:
		fmt.Fprintln(o.stdout, v)
	case int:
		fmt.Fprintln(o.stdout, v)
	case map[string]string:
		writeProperties(o, v)
	case []string:
		fmt.Fprintln(o.stdout, strings.Join(v, "\n"))
	case fmt.Stringer:
		fmt.Fprintln(o.stdout, v.String())
	default:
		// structured values read fine as indented json
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			fmt.Fprintf(o.stdout, "%v\n", v)
			return
		}
		fmt.Fprintln(o.stdout, string(data))
	}
}
