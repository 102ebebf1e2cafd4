package compose

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParamType classifies a customizable parameter for validation and form
// rendering.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeInt    ParamType = "int"
	TypePort   ParamType = "port"
	TypePath   ParamType = "path"
	TypeBool   ParamType = "bool"
)

// ComposeParameter is one environment entry that can be customized at
// deployment time. A parameter without a default is required.
type ComposeParameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Default     string    `json:"default"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
}

// ValidationError reports an override value that fails its parameter's
// declared type.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for %s: %s", e.Name, e.Reason)
}

// typePatterns maps key-name patterns to parameter types. Evaluated in
// declared order, first match wins; a key matching several classes gets the
// earliest one.
var typePatterns = []struct {
	pattern *regexp.Regexp
	typ     ParamType
}{
	{regexp.MustCompile(`(?i)PORT`), TypePort},
	{regexp.MustCompile(`(?i)PUID|PGID|UID|GID|_ID$|COUNT`), TypeInt},
	{regexp.MustCompile(`(?i)PATH|DIR|VOLUME`), TypePath},
	{regexp.MustCompile(`(?i)ENABLED|DEBUG|SECURE`), TypeBool},
}

// InferType classifies a parameter from its environment key name.
func InferType(name string) ParamType {
	for _, entry := range typePatterns {
		if entry.pattern.MatchString(name) {
			return entry.typ
		}
	}
	return TypeString
}

// commonParameters are always offered for customization unless the manifest
// already declares them.
var commonParameters = []ComposeParameter{
	{Name: "TZ", Type: TypeString, Default: "UTC", Description: "Timezone"},
	{Name: "PUID", Type: TypeInt, Default: "1000", Description: "User ID"},
	{Name: "PGID", Type: TypeInt, Default: "1000", Description: "Group ID"},
}

// ExtractSchema derives the customizable parameter schema from raw manifest
// text. Environment entries are scanned across all services in document
// order; the first occurrence of a key wins. Placeholder values referencing
// a non-internal variable become required parameters; literal values become
// optional parameters carrying the literal as default. A malformed manifest
// yields an empty schema.
func ExtractSchema(manifest string) []ComposeParameter {
	doc, err := parseDocument(manifest)
	if err != nil {
		return nil
	}
	servicesNode := childNode(doc, "services")
	if servicesNode == nil || servicesNode.Kind != yaml.MappingNode {
		return nil
	}

	var parameters []ComposeParameter
	seen := make(map[string]bool)

	for _, defNode := range mappingPairs(servicesNode) {
		if defNode.Kind != yaml.MappingNode {
			continue
		}
		for _, entry := range envEntries(childNode(defNode, "environment")) {
			if seen[entry.Key] {
				continue
			}
			if strings.HasPrefix(entry.Value, "$") {
				// Substitution reference: customizable unless the variable
				// is marked internal with a leading underscore.
				variable := strings.Trim(entry.Value, "${}")
				if strings.HasPrefix(variable, "_") {
					continue
				}
				seen[entry.Key] = true
				parameters = append(parameters, ComposeParameter{
					Name:        entry.Key,
					Type:        InferType(entry.Key),
					Description: "Environment variable " + entry.Key,
					Required:    true,
				})
				continue
			}
			seen[entry.Key] = true
			parameters = append(parameters, ComposeParameter{
				Name:        entry.Key,
				Type:        InferType(entry.Key),
				Default:     entry.Value,
				Description: "Environment variable " + entry.Key,
			})
		}
	}

	for _, common := range commonParameters {
		if !seen[common.Name] {
			parameters = append(parameters, common)
		}
	}
	return parameters
}

// Validate checks a value against the parameter's declared type.
func (p ComposeParameter) Validate(value string) error {
	switch p.Type {
	case TypeInt:
		if _, err := strconv.Atoi(strings.TrimSpace(value)); err != nil {
			return &ValidationError{Name: p.Name, Reason: "must be an integer"}
		}
	case TypePort:
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return &ValidationError{Name: p.Name, Reason: "must be a valid port"}
		}
		if port < 1 || port > 65535 {
			return &ValidationError{Name: p.Name, Reason: fmt.Sprintf("port %d out of range (1-65535)", port)}
		}
	case TypeBool:
		switch strings.ToLower(value) {
		case "true", "1", "yes", "false", "0", "no":
		default:
			return &ValidationError{Name: p.Name, Reason: "must be true/false"}
		}
	}
	// string and path accept any value.
	return nil
}
