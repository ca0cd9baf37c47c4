package record

import (
	"time"

	"github.com/google/uuid"
)

// ResourceType is the platform's canonical resource-type enumeration.
// Vendor-specific type names are mapped onto it during ingestion;
// anything unrecognized lands in TypeOther rather than being dropped.
type ResourceType string

const (
	TypePatient            ResourceType = "PATIENT"
	TypeObservation        ResourceType = "OBSERVATION"
	TypeCondition          ResourceType = "CONDITION"
	TypeEncounter          ResourceType = "ENCOUNTER"
	TypeMedicationRequest  ResourceType = "MEDICATION_REQUEST"
	TypeAllergyIntolerance ResourceType = "ALLERGY_INTOLERANCE"
	TypeImmunization       ResourceType = "IMMUNIZATION"
	TypeProcedure          ResourceType = "PROCEDURE"
	TypeDiagnosticReport   ResourceType = "DIAGNOSTIC_REPORT"
	TypeDocumentReference  ResourceType = "DOCUMENT_REFERENCE"
	TypeCarePlan           ResourceType = "CARE_PLAN"
	TypeGoal               ResourceType = "GOAL"
	TypeServiceRequest     ResourceType = "SERVICE_REQUEST"
	TypeProvenance         ResourceType = "PROVENANCE"
	TypeCoverage           ResourceType = "COVERAGE"
	TypeOther              ResourceType = "OTHER"
)

// ResourceRecord is one ingested clinical entity. Its natural key is
// (connection_id, fhir_id, resource_type); writes are upserts on that key.
type ResourceRecord struct {
	ID           uuid.UUID              `db:"id" json:"id"`
	ConnectionID uuid.UUID              `db:"connection_id" json:"connection_id"`
	FHIRID       string                 `db:"fhir_id" json:"fhir_id"`
	ResourceType ResourceType           `db:"resource_type" json:"resource_type"`
	Title        *string                `db:"title" json:"title,omitempty"`
	Date         *time.Time             `db:"date" json:"date,omitempty"`
	Status       *string                `db:"status" json:"status,omitempty"`
	Category     *string                `db:"category" json:"category,omitempty"`
	RawPayload   map[string]interface{} `db:"raw_payload" json:"raw_payload"`
	EnhancedData map[string]interface{} `db:"enhanced_data" json:"enhanced_data,omitempty"`
	SizeBytes    int64                  `db:"size_bytes" json:"size_bytes"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time              `db:"updated_at" json:"updated_at"`
}

// ProjectedFields are the small set of display fields pulled out of the raw
// payload at ingestion time.
type ProjectedFields struct {
	Title    *string
	Date     *time.Time
	Status   *string
	Category *string
}

// Project derives the canonical display fields from a raw FHIR resource.
// It tolerates absent fields; vendors vary widely in what they populate.
func Project(raw map[string]interface{}) ProjectedFields {
	var p ProjectedFields

	if title := firstString(raw,
		"title",
		"code.text",
		"code.coding.0.display",
		"medicationCodeableConcept.text",
		"type.text",
		"description",
	); title != "" {
		p.Title = &title
	}

	if dateStr := firstString(raw,
		"effectiveDateTime",
		"onsetDateTime",
		"issued",
		"authoredOn",
		"occurrenceDateTime",
		"performedDateTime",
		"date",
		"period.start",
		"recordedDate",
	); dateStr != "" {
		if t, ok := parseFHIRInstant(dateStr); ok {
			p.Date = &t
		}
	}

	if status := firstString(raw, "status", "clinicalStatus.coding.0.code", "lifecycleStatus"); status != "" {
		p.Status = &status
	}

	if category := firstString(raw,
		"category.0.text",
		"category.0.coding.0.display",
		"category.0.coding.0.code",
		"category.text",
		"category.coding.0.code",
	); category != "" {
		p.Category = &category
	}

	return p
}

// firstString walks dotted paths (numeric segments index into arrays) and
// returns the first non-empty string found.
func firstString(raw map[string]interface{}, paths ...string) string {
	for _, path := range paths {
		if s := stringAtPath(raw, path); s != "" {
			return s
		}
	}
	return ""
}

func stringAtPath(raw map[string]interface{}, path string) string {
	var cur interface{} = raw
	start := 0
	for i := 0; i <= len(path); i++ {
		if i != len(path) && path[i] != '.' {
			continue
		}
		seg := path[start:i]
		start = i + 1

		switch node := cur.(type) {
		case map[string]interface{}:
			cur = node[seg]
		case []interface{}:
			idx := 0
			for _, ch := range seg {
				if ch < '0' || ch > '9' {
					return ""
				}
				idx = idx*10 + int(ch-'0')
			}
			if idx >= len(node) {
				return ""
			}
			cur = node[idx]
		default:
			return ""
		}
	}
	s, _ := cur.(string)
	return s
}

func parseFHIRInstant(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
