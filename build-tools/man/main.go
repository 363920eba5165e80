package main

import (
	"log"
	"os"

	"github.com/forestnode-io/knob/pkg/commands/root"
	"github.com/spf13/cobra/doc"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: man <output dir>")
	}
	cmd := root.CobraCommand()
	header := doc.GenManHeader{
		Title:   "KNOB",
		Section: "1",
		Source:  "https://github.com/forestnode-io/knob",
	}
	if err := doc.GenManTree(cmd, &header, os.Args[1]); err != nil {
		log.Fatal(err)
	}
}
