package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/forestnode-io/knob/pkg/configuration"
	"github.com/spf13/cobra"
	"github.com/vmware-labs/yaml-jsonpath/pkg/yamlpath"
	"gopkg.in/yaml.v3"
)

type getCmd struct {
	cobraCommand *cobra.Command
}

func newGet() *getCmd {
	return &getCmd{}
}

func (c *getCmd) Cobra() *cobra.Command {
	if c.cobraCommand != nil {
		return c.cobraCommand
	}

	c.cobraCommand = &cobra.Command{
		Use:   "get path",
		Short: "Get an individual value from the configuration file",
		Long: `Get an individual value from the configuration file.

path is a YAML JSONPath expression, e.g. $.server.port`,
		Args: cobra.ExactArgs(1),
		RunE: c.run,
	}

	return c.cobraCommand
}

func (c *getCmd) run(cmd *cobra.Command, args []string) error {
	if configuration.ConfigPath == "" {
		return errors.New("no configuration file found (KNOB_CONFIG)")
	}

	fileBytes, err := os.ReadFile(configuration.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}
	return Get(cmd.OutOrStdout(), fileBytes, args[0])
}

// Get writes the first node of doc matched by path.
func Get(w io.Writer, doc []byte, path string) error {
	var node yaml.Node
	if err := yaml.Unmarshal(doc, &node); err != nil {
		return fmt.Errorf("failed to unmarshal configuration file: %w", err)
	}

	p, err := yamlpath.NewPath(path)
	if err != nil {
		return fmt.Errorf("failed to parse path: %w", err)
	}

	foundNodes, err := p.Find(&node)
	if err != nil {
		return fmt.Errorf("failed to find path in configuration file: %w", err)
	}
	if len(foundNodes) == 0 {
		return fmt.Errorf("no value at %s", path)
	}

	selectedNode := foundNodes[0]
	removeComments(selectedNode)

	if selectedNode.Kind == yaml.ScalarNode {
		_, err := fmt.Fprintln(w, selectedNode.Value)
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(selectedNode); err != nil {
		return err
	}
	return enc.Close()
}

func removeComments(node *yaml.Node) {
	node.HeadComment = ""
	node.LineComment = ""
	node.FootComment = ""
	for _, n := range node.Content {
		removeComments(n)
	}
}
