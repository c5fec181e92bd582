package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SetValue updates a dotted key (e.g. "git.branch") in the config file.
// Comments and formatting of other keys survive because the file is edited
// as a yaml.Node tree. Missing intermediate mappings are created. When the
// existing value is a sequence, value is split on commas.
func SetValue(configPath, key, value string) error {
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("invalid key %q", key)
		}
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: user-supplied config path
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("parsing config: top level must be a mapping")
	}

	node := doc.Content[0]
	for i, p := range parts {
		last := i == len(parts)-1
		child := lookup(node, p)
		if child == nil {
			child = &yaml.Node{Kind: yaml.MappingNode}
			if last {
				child = &yaml.Node{Kind: yaml.ScalarNode}
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: p},
				child,
			)
		}
		if last {
			setNodeValue(child, value)
			break
		}
		if child.Kind != yaml.MappingNode {
			return fmt.Errorf("key %q: %q is not a mapping", key, strings.Join(parts[:i+1], "."))
		}
		node = child
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	if err := os.WriteFile(configPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func setNodeValue(n *yaml.Node, value string) {
	if n.Kind == yaml.SequenceNode {
		n.Content = nil
		for item := range strings.SplitSeq(value, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: item})
		}
		return
	}
	n.Kind = yaml.ScalarNode
	n.Tag = ""
	n.Style = 0
	n.Content = nil
	n.Value = value
}
