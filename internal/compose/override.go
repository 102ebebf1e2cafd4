package compose

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ApplyEnvOverrides rewrites manifest text so that every service environment
// entry whose key exactly matches an override key carries the override
// value. Both declaration forms are handled; non-matching keys are left
// untouched. The document is re-serialized, so original formatting and
// comments are not preserved.
func ApplyEnvOverrides(manifest string, overrides map[string]string) (string, error) {
	return rewrite(manifest, func(_ string, defNode *yaml.Node) {
		envNode := childNode(defNode, "environment")
		envNode = resolveAlias(envNode)
		if envNode == nil {
			return
		}
		switch envNode.Kind {
		case yaml.MappingNode:
			for key, value := range mappingPairs(envNode) {
				if next, ok := overrides[key]; ok {
					setScalar(value, next)
				}
			}
		case yaml.SequenceNode:
			for _, item := range envNode.Content {
				item = resolveAlias(item)
				if item.Kind != yaml.ScalarNode {
					continue
				}
				key, _, ok := splitEnvItem(item.Value)
				if !ok {
					continue
				}
				if next, found := overrides[key]; found {
					setScalar(item, key+"="+next)
				}
			}
		}
	})
}

// ApplyVolumeOverrides rewrites manifest text replacing every bind-mount
// source path that exactly matches an override key with the override value.
// Matching is string equality only, no prefix or pattern expansion.
func ApplyVolumeOverrides(manifest string, overrides map[string]string) (string, error) {
	return rewrite(manifest, func(_ string, defNode *yaml.Node) {
		volumesNode := resolveAlias(childNode(defNode, "volumes"))
		if volumesNode == nil || volumesNode.Kind != yaml.SequenceNode {
			return
		}
		for _, item := range volumesNode.Content {
			item = resolveAlias(item)
			switch item.Kind {
			case yaml.ScalarNode:
				if !strings.Contains(item.Value, ":") {
					continue
				}
				parts := strings.SplitN(item.Value, ":", 2)
				if next, ok := overrides[parts[0]]; ok {
					setScalar(item, next+":"+parts[1])
				}
			case yaml.MappingNode:
				if value := childNode(item, "type"); value == nil || value.Value != "bind" {
					continue
				}
				source := childNode(item, "source")
				if source == nil {
					continue
				}
				if next, ok := overrides[source.Value]; ok {
					setScalar(source, next)
				}
			}
		}
	})
}

// rewrite parses manifest text, applies mutate to every service definition
// node, and serializes the document back to text.
func rewrite(manifest string, mutate func(name string, defNode *yaml.Node)) (string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(manifest), &root); err != nil {
		return "", fmt.Errorf("invalid manifest: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return manifest, nil
	}
	doc := resolveAlias(root.Content[0])
	servicesNode := childNode(doc, "services")
	if servicesNode == nil || servicesNode.Kind != yaml.MappingNode {
		return manifest, nil
	}

	for name, defNode := range mappingPairs(servicesNode) {
		if defNode.Kind != yaml.MappingNode {
			continue
		}
		mutate(name, defNode)
	}

	out, err := yaml.Marshal(&root)
	if err != nil {
		return "", fmt.Errorf("serialize manifest: %w", err)
	}
	return string(out), nil
}

func setScalar(node *yaml.Node, value string) {
	node.Kind = yaml.ScalarNode
	node.Tag = "!!str"
	node.Value = value
	node.Style = 0
	node.Content = nil
}
