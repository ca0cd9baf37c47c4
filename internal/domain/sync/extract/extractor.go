// Package extract pulls vendor-specific structured fields out of raw FHIR
// resources before storage. Each extractor handles one canonical resource
// type; records of types with no registered extractor are stored raw.
package extract

import (
	"github.com/ehrsync/ehrsync/internal/domain/record"
)

// Extractor produces the enhancedData blob for one canonical resource type.
type Extractor interface {
	ResourceType() record.ResourceType
	Extract(raw map[string]interface{}) (map[string]interface{}, error)
}

// Registry maps canonical resource types to their extractors.
type Registry struct {
	byType map[record.ResourceType]Extractor
}

func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{byType: make(map[record.ResourceType]Extractor, len(extractors))}
	for _, e := range extractors {
		r.byType[e.ResourceType()] = e
	}
	return r
}

func (r *Registry) Get(rt record.ResourceType) (Extractor, bool) {
	e, ok := r.byType[rt]
	return e, ok
}

// DefaultRegistry wires the extractors for every enhanced resource type any
// supported vendor exposes.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&CarePlanExtractor{},
		&DiagnosticReportExtractor{},
		&GoalExtractor{},
		&ServiceRequestExtractor{},
		&ProvenanceExtractor{},
		&CoverageExtractor{},
	)
}

// -- shared field access helpers --

func getString(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func getMap(m map[string]interface{}, key string) map[string]interface{} {
	v, _ := m[key].(map[string]interface{})
	return v
}

func getSlice(m map[string]interface{}, key string) []interface{} {
	v, _ := m[key].([]interface{})
	return v
}

// codeableText returns the display text of a FHIR CodeableConcept: its text
// field, or the first coding's display, or the first coding's code.
func codeableText(cc map[string]interface{}) string {
	if cc == nil {
		return ""
	}
	if text := getString(cc, "text"); text != "" {
		return text
	}
	for _, c := range getSlice(cc, "coding") {
		coding, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if d := getString(coding, "display"); d != "" {
			return d
		}
		if code := getString(coding, "code"); code != "" {
			return code
		}
	}
	return ""
}

// reference returns the reference string of a FHIR Reference element.
func reference(m map[string]interface{}, key string) string {
	return getString(getMap(m, key), "reference")
}
