// Package compose parses app manifests (docker-compose documents with a
// vendor metadata block), derives customizable parameter schemas from them,
// and rewrites manifest text with deployment-time overrides.
package compose

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ManifestFilename is the recognized manifest file inside an app directory.
const ManifestFilename = "docker-compose.yml"

// MetadataKey is the vendor-extension block carrying app-level metadata.
const MetadataKey = "x-casaos"

// App is the normalized record for one catalog app. It is rebuilt wholesale
// on every scan of its directory and never partially mutated.
type App struct {
	ID            string                     `json:"app_id"`
	Title         string                     `json:"title"`
	Description   string                     `json:"description"`
	Icon          string                     `json:"icon,omitempty"`
	Developer     string                     `json:"developer,omitempty"`
	Category      string                     `json:"category,omitempty"`
	PortMap       string                     `json:"port_map,omitempty"`
	Index         string                     `json:"index,omitempty"`
	MainService   string                     `json:"main_service"`
	Screenshots   []string                   `json:"screenshot_links,omitempty"`
	Thumbnail     string                     `json:"thumbnail,omitempty"`
	Repository    string                     `json:"repository_source"`
	Manifest      string                     `json:"compose_content"`
	Services      map[string]ServiceMetadata `json:"services"`
	Architectures []string                   `json:"architectures"`
	Tags          []string                   `json:"tags"`
}

// ServiceMetadata is the normalized view of one service declaration.
type ServiceMetadata struct {
	ContainerName string            `json:"container_name"`
	Image         string            `json:"image"`
	Ports         []PortSpec        `json:"ports"`
	Volumes       []VolumeSpec      `json:"volumes"`
	Environment   map[string]string `json:"environment"`
}

// PortSpec is one normalized port declaration. A shorthand scalar is kept
// verbatim in Raw; the structured form fills the remaining fields. Exactly
// one of the two shapes is populated, decided once at parse time.
type PortSpec struct {
	Raw       string `json:"raw,omitempty"`
	Target    int    `json:"target,omitempty"`
	Published string `json:"published,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// UnmarshalYAML accepts both the scalar shorthand ("8080:80/tcp") and the
// long mapping syntax.
func (p *PortSpec) UnmarshalYAML(node *yaml.Node) error {
	node = resolveAlias(node)
	switch node.Kind {
	case yaml.ScalarNode:
		p.Raw = node.Value
		return nil
	case yaml.MappingNode:
		for key, value := range mappingPairs(node) {
			switch key {
			case "target":
				target, err := strconv.Atoi(value.Value)
				if err != nil {
					return fmt.Errorf("invalid port target %q on line %d", value.Value, value.Line)
				}
				p.Target = target
			case "published":
				p.Published = value.Value
			case "protocol":
				p.Protocol = value.Value
			case "mode":
				p.Mode = value.Value
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported port declaration on line %d", node.Line)
}

// VolumeSpec is one normalized volume declaration, with the same verbatim
// shorthand vs. structured split as PortSpec.
type VolumeSpec struct {
	Raw      string `json:"raw,omitempty"`
	Type     string `json:"type,omitempty"`
	Source   string `json:"source,omitempty"`
	Target   string `json:"target,omitempty"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

// UnmarshalYAML accepts both the scalar shorthand ("/host:/ctr:ro") and the
// long mapping syntax.
func (v *VolumeSpec) UnmarshalYAML(node *yaml.Node) error {
	node = resolveAlias(node)
	switch node.Kind {
	case yaml.ScalarNode:
		v.Raw = node.Value
		return nil
	case yaml.MappingNode:
		for key, value := range mappingPairs(node) {
			switch key {
			case "type":
				v.Type = value.Value
			case "source":
				v.Source = value.Value
			case "target":
				v.Target = value.Value
			case "read_only":
				v.ReadOnly = isTruthy(value.Value)
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported volume declaration on line %d", node.Line)
}

// EnvMap normalizes environment declarations from either a key→value
// mapping or a list of KEY=VALUE strings into one flat mapping.
type EnvMap map[string]string

// UnmarshalYAML accepts both declaration forms.
func (e *EnvMap) UnmarshalYAML(node *yaml.Node) error {
	flat := make(map[string]string)
	for _, entry := range envEntries(node) {
		flat[entry.Key] = entry.Value
	}
	*e = flat
	return nil
}

// envEntry is one environment declaration in document order.
type envEntry struct {
	Key   string
	Value string
}

// envEntries flattens an environment node of either accepted form,
// preserving document order. Unrecognized entries are skipped.
func envEntries(node *yaml.Node) []envEntry {
	node = resolveAlias(node)
	if node == nil {
		return nil
	}

	var entries []envEntry
	switch node.Kind {
	case yaml.MappingNode:
		for key, value := range mappingPairs(node) {
			if value.Kind != yaml.ScalarNode {
				continue
			}
			entryValue := value.Value
			if value.Tag == "!!null" {
				entryValue = ""
			}
			entries = append(entries, envEntry{Key: key, Value: entryValue})
		}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			item = resolveAlias(item)
			if item.Kind != yaml.ScalarNode {
				continue
			}
			key, value, ok := splitEnvItem(item.Value)
			if !ok {
				continue
			}
			entries = append(entries, envEntry{Key: key, Value: value})
		}
	}
	return entries
}

func splitEnvItem(item string) (key, value string, ok bool) {
	for i := 0; i < len(item); i++ {
		if item[i] == '=' {
			return item[:i], item[i+1:], true
		}
	}
	return "", "", false
}

// mappingPairs iterates a mapping node's key/value pairs in document order.
func mappingPairs(node *yaml.Node) func(yield func(string, *yaml.Node) bool) {
	return func(yield func(string, *yaml.Node) bool) {
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := resolveAlias(node.Content[i])
			value := resolveAlias(node.Content[i+1])
			if key.Kind != yaml.ScalarNode {
				continue
			}
			if !yield(key.Value, value) {
				return
			}
		}
	}
}

// childNode returns the value node for a key of a mapping node, or nil.
func childNode(node *yaml.Node, name string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for key, value := range mappingPairs(node) {
		if key == name {
			return value
		}
	}
	return nil
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	if node != nil && node.Kind == yaml.AliasNode && node.Alias != nil {
		return node.Alias
	}
	return node
}

func isTruthy(value string) bool {
	switch value {
	case "true", "True", "TRUE", "yes", "on", "1":
		return true
	}
	return false
}
