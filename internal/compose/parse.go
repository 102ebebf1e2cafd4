package compose

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrNoServices reports a manifest that declares no usable service; such a
// manifest never produces an App.
var ErrNoServices = errors.New("manifest declares no services")

// localized is a string that may be declared as a locale→value mapping.
// A primary locale is preferred, then a secondary one, then the first
// non-empty value in document order.
type localized string

var localePreference = []string{"en_US", "en_us", "it_IT", "it_it"}

func (l *localized) UnmarshalYAML(node *yaml.Node) error {
	node = resolveAlias(node)
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*l = ""
		} else {
			*l = localized(node.Value)
		}
		return nil
	case yaml.MappingNode:
		values := make(map[string]string)
		var first string
		for key, value := range mappingPairs(node) {
			if value.Kind != yaml.ScalarNode {
				continue
			}
			values[key] = value.Value
			if first == "" {
				first = value.Value
			}
		}
		for _, locale := range localePreference {
			if values[locale] != "" {
				*l = localized(values[locale])
				return nil
			}
		}
		*l = localized(first)
		return nil
	}
	*l = ""
	return nil
}

// stringList accepts either a single scalar or a sequence of scalars.
type stringList []string

func (s *stringList) UnmarshalYAML(node *yaml.Node) error {
	node = resolveAlias(node)
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*s = nil
		} else {
			*s = stringList{node.Value}
		}
		return nil
	case yaml.SequenceNode:
		var list []string
		for _, item := range node.Content {
			item = resolveAlias(item)
			if item.Kind == yaml.ScalarNode {
				list = append(list, item.Value)
			}
		}
		*s = list
		return nil
	}
	*s = nil
	return nil
}

// metadata is the vendor-extension block. Key names are a compatibility
// surface and are read verbatim.
type metadata struct {
	Main          string     `yaml:"main"`
	Title         localized  `yaml:"title"`
	Description   localized  `yaml:"description"`
	Icon          string     `yaml:"icon"`
	Developer     string     `yaml:"developer"`
	Category      string     `yaml:"category"`
	PortMap       string     `yaml:"port_map"`
	Index         string     `yaml:"index"`
	Screenshots   stringList `yaml:"screenshot_link"`
	Thumbnail     string     `yaml:"thumbnail"`
	Architectures stringList `yaml:"architectures"`
	Tags          stringList `yaml:"tags"`
}

// serviceDef is the subset of a service declaration the catalog keeps.
type serviceDef struct {
	ContainerName string       `yaml:"container_name"`
	Image         string       `yaml:"image"`
	Ports         []PortSpec   `yaml:"ports"`
	Volumes       []VolumeSpec `yaml:"volumes"`
	Environment   EnvMap       `yaml:"environment"`
}

// Parse turns one manifest document into a normalized App. The raw manifest
// text is stored unmodified on the App so later schema extraction and
// override operations start from a byte-identical source. Parsing the same
// text twice yields equal Apps.
func Parse(manifest, appID, repository string) (*App, error) {
	doc, err := parseDocument(manifest)
	if err != nil {
		return nil, err
	}

	meta := metadata{
		Developer: "Unknown",
		Category:  "Other",
		PortMap:   "80",
		Index:     "/",
	}
	if metaNode := childNode(doc, MetadataKey); metaNode != nil {
		if err := metaNode.Decode(&meta); err != nil {
			return nil, fmt.Errorf("invalid %s block: %w", MetadataKey, err)
		}
	}

	servicesNode := childNode(doc, "services")
	services := make(map[string]ServiceMetadata)
	var serviceOrder []string
	if servicesNode != nil && servicesNode.Kind == yaml.MappingNode {
		for name, defNode := range mappingPairs(servicesNode) {
			if defNode.Kind != yaml.MappingNode {
				continue
			}
			var def serviceDef
			if err := defNode.Decode(&def); err != nil {
				return nil, fmt.Errorf("invalid service %q: %w", name, err)
			}
			if def.ContainerName == "" {
				def.ContainerName = name
			}
			if def.Environment == nil {
				def.Environment = EnvMap{}
			}
			services[name] = ServiceMetadata{
				ContainerName: def.ContainerName,
				Image:         def.Image,
				Ports:         def.Ports,
				Volumes:       def.Volumes,
				Environment:   def.Environment,
			}
			serviceOrder = append(serviceOrder, name)
		}
	}
	if len(serviceOrder) == 0 {
		return nil, ErrNoServices
	}

	// The vendor block may name a main service that the document no longer
	// declares; fall back to the first service in document order so the
	// main-service invariant always holds.
	mainService := meta.Main
	if _, ok := services[mainService]; !ok {
		mainService = serviceOrder[0]
	}

	architectures := []string(meta.Architectures)
	if len(architectures) == 0 {
		architectures = []string{"amd64"}
	}
	tags := []string(meta.Tags)
	if tags == nil {
		tags = []string{}
	}

	return &App{
		ID:            appID,
		Title:         string(meta.Title),
		Description:   string(meta.Description),
		Icon:          meta.Icon,
		Developer:     meta.Developer,
		Category:      meta.Category,
		PortMap:       meta.PortMap,
		Index:         meta.Index,
		MainService:   mainService,
		Screenshots:   meta.Screenshots,
		Thumbnail:     meta.Thumbnail,
		Repository:    repository,
		Manifest:      manifest,
		Services:      services,
		Architectures: architectures,
		Tags:          tags,
	}, nil
}

// parseDocument parses manifest text and returns its top-level mapping node.
func parseDocument(manifest string) (*yaml.Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(manifest), &root); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, ErrNoServices
	}
	doc := resolveAlias(root.Content[0])
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("manifest root is not a mapping")
	}
	return doc, nil
}
