package compose

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// VolumeParameter is one customizable bind mount.
type VolumeParameter struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Service string `json:"service"`
	Mode    string `json:"mode"` // rw or ro
}

// ExtractVolumes lists every bind mount declared by the manifest's services,
// in document order. Named/managed volumes are excluded: a shorthand entry
// counts as a bind mount only when its source looks like a filesystem path,
// a structured entry only when its declared type is "bind".
func ExtractVolumes(manifest string) []VolumeParameter {
	doc, err := parseDocument(manifest)
	if err != nil {
		return nil
	}
	servicesNode := childNode(doc, "services")
	if servicesNode == nil || servicesNode.Kind != yaml.MappingNode {
		return nil
	}

	var volumes []VolumeParameter
	for serviceName, defNode := range mappingPairs(servicesNode) {
		if defNode.Kind != yaml.MappingNode {
			continue
		}
		volumesNode := childNode(defNode, "volumes")
		if volumesNode == nil || volumesNode.Kind != yaml.SequenceNode {
			continue
		}
		for _, item := range volumesNode.Content {
			var spec VolumeSpec
			if err := spec.UnmarshalYAML(item); err != nil {
				continue
			}
			if param, ok := bindMount(spec, serviceName); ok {
				volumes = append(volumes, param)
			}
		}
	}
	return volumes
}

func bindMount(spec VolumeSpec, service string) (VolumeParameter, bool) {
	if spec.Raw != "" {
		source, target, mode, ok := splitBindShorthand(spec.Raw)
		if !ok || !looksLikePath(source) {
			return VolumeParameter{}, false
		}
		return VolumeParameter{Source: source, Target: target, Service: service, Mode: mode}, true
	}
	if spec.Type != "bind" {
		return VolumeParameter{}, false
	}
	mode := "rw"
	if spec.ReadOnly {
		mode = "ro"
	}
	return VolumeParameter{Source: spec.Source, Target: spec.Target, Service: service, Mode: mode}, true
}

// splitBindShorthand splits "source:target[:mode]". A bare name without a
// colon is an anonymous or managed volume, not a bind mount.
func splitBindShorthand(raw string) (source, target, mode string, ok bool) {
	if !strings.Contains(raw, ":") {
		return "", "", "", false
	}
	parts := strings.SplitN(raw, ":", 3)
	source = parts[0]
	if len(parts) > 1 {
		target = parts[1]
	}
	mode = "rw"
	if len(parts) > 2 && parts[2] != "" {
		mode = parts[2]
	}
	return source, target, mode, true
}

func looksLikePath(source string) bool {
	return strings.HasPrefix(source, "/") ||
		strings.HasPrefix(source, ".") ||
		strings.HasPrefix(source, "~")
}
