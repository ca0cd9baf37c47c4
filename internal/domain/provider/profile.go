package provider

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ehrsync/ehrsync/internal/domain/record"
)

// Vendor identifies one of the supported EHR platforms.
type Vendor string

const (
	VendorEpic           Vendor = "epic"
	VendorCerner         Vendor = "cerner"
	VendorAthenaHealth   Vendor = "athenahealth"
	VendorEClinicalWorks Vendor = "eclinicalworks"
)

// ExportType selects the scope of a bulk export.
type ExportType string

const (
	ExportPatient ExportType = "PATIENT"
	ExportGroup   ExportType = "GROUP"
	ExportSystem  ExportType = "SYSTEM"
)

// Profile is the per-vendor capability table. All vendor behavior
// differences are data here; the coordinator and pipeline never branch on
// the vendor.
type Profile struct {
	Vendor Vendor

	// KickoffPaths maps export scope to the path template appended to the
	// connection's base URL. "{patientId}" is substituted for patient-level
	// exports.
	KickoffPaths map[ExportType]string

	// CallDelay is the minimum spacing between outbound calls to this
	// vendor.
	CallDelay time.Duration

	// TenantHeader names the routing header for multi-tenant vendor
	// deployments; empty when the vendor does not partition by tenant.
	TenantHeader string

	// PerRecordDelay applies CallDelay between successive record upserts as
	// well, for vendor contracts that meter by operation rather than by
	// network call.
	PerRecordDelay bool

	// TypeMap maps the vendor's resourceType strings to canonical types.
	TypeMap map[string]record.ResourceType

	// EnhancedTypes lists the resource types this vendor exposes beyond the
	// common baseline, eligible for enhanced extraction and direct sync.
	EnhancedTypes []record.ResourceType
}

// KickoffURL assembles the vendor's export kickoff URL for the given scope,
// appending _type and _since when supplied.
func (p *Profile) KickoffURL(baseURL string, exportType ExportType, patientID string, resourceTypes []string, since *time.Time) (string, error) {
	path, ok := p.KickoffPaths[exportType]
	if !ok {
		return "", fmt.Errorf("vendor %s does not support %s export", p.Vendor, exportType)
	}
	if exportType == ExportPatient {
		if patientID == "" {
			return "", fmt.Errorf("patient export requires a patient id")
		}
		path = strings.ReplaceAll(path, "{patientId}", url.PathEscape(patientID))
	}

	full := strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")

	params := url.Values{}
	if len(resourceTypes) > 0 {
		params.Set("_type", strings.Join(resourceTypes, ","))
	}
	if since != nil {
		params.Set("_since", since.UTC().Format(time.RFC3339))
	}
	if encoded := params.Encode(); encoded != "" {
		full += "?" + encoded
	}
	return full, nil
}

// SearchURL assembles a type-scoped search URL for the direct (non-bulk)
// sync path: all resources of one type for one patient.
func (p *Profile) SearchURL(baseURL, vendorType, patientID string) string {
	return fmt.Sprintf("%s/%s?patient=%s",
		strings.TrimRight(baseURL, "/"), vendorType, url.QueryEscape(patientID))
}

// CanonicalType maps a vendor resourceType string onto the canonical enum.
// Unrecognized types land in TypeOther; the second return distinguishes a
// real mapping from the fallback.
func (p *Profile) CanonicalType(vendorType string) (record.ResourceType, bool) {
	if rt, ok := p.TypeMap[vendorType]; ok {
		return rt, true
	}
	return record.TypeOther, false
}

// SupportsEnhanced reports whether this vendor exposes the given resource
// type beyond the common baseline.
func (p *Profile) SupportsEnhanced(rt record.ResourceType) bool {
	for _, t := range p.EnhancedTypes {
		if t == rt {
			return true
		}
	}
	return false
}

// Registry holds the configured vendor profiles.
type Registry struct {
	profiles map[Vendor]*Profile
}

func NewRegistry(profiles ...*Profile) *Registry {
	r := &Registry{profiles: make(map[Vendor]*Profile, len(profiles))}
	for _, p := range profiles {
		r.profiles[p.Vendor] = p
	}
	return r
}

func (r *Registry) Get(v Vendor) (*Profile, error) {
	p, ok := r.profiles[v]
	if !ok {
		return nil, fmt.Errorf("no profile configured for vendor %q", v)
	}
	return p, nil
}

func (r *Registry) Vendors() []Vendor {
	out := make([]Vendor, 0, len(r.profiles))
	for v := range r.profiles {
		out = append(out, v)
	}
	return out
}

// baselineTypeMap is the resource-type vocabulary every supported vendor
// shares.
func baselineTypeMap() map[string]record.ResourceType {
	return map[string]record.ResourceType{
		"Patient":            record.TypePatient,
		"Observation":        record.TypeObservation,
		"Condition":          record.TypeCondition,
		"Encounter":          record.TypeEncounter,
		"MedicationRequest":  record.TypeMedicationRequest,
		"AllergyIntolerance": record.TypeAllergyIntolerance,
		"Immunization":       record.TypeImmunization,
		"Procedure":          record.TypeProcedure,
		"DiagnosticReport":   record.TypeDiagnosticReport,
		"DocumentReference":  record.TypeDocumentReference,
		"CarePlan":           record.TypeCarePlan,
	}
}

func withTypes(base map[string]record.ResourceType, extra map[string]record.ResourceType) map[string]record.ResourceType {
	for k, v := range extra {
		base[k] = v
	}
	return base
}

var standardKickoffPaths = map[ExportType]string{
	ExportPatient: "Patient/{patientId}/$export",
	ExportGroup:   "Group/$export",
	ExportSystem:  "$export",
}

// DefaultRegistry returns profiles for the four supported vendors. Delays
// reflect each vendor's published per-app call ceiling.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&Profile{
			Vendor:       VendorEpic,
			KickoffPaths: standardKickoffPaths,
			CallDelay:    150 * time.Millisecond,
			TypeMap: withTypes(baselineTypeMap(), map[string]record.ResourceType{
				"Goal":           record.TypeGoal,
				"ServiceRequest": record.TypeServiceRequest,
			}),
			EnhancedTypes: []record.ResourceType{
				record.TypeCarePlan, record.TypeDiagnosticReport,
				record.TypeGoal, record.TypeServiceRequest,
			},
		},
		&Profile{
			Vendor:       VendorCerner,
			KickoffPaths: standardKickoffPaths,
			CallDelay:    110 * time.Millisecond,
			TenantHeader: "X-Tenant-ID",
			TypeMap: withTypes(baselineTypeMap(), map[string]record.ResourceType{
				"Provenance": record.TypeProvenance,
				"Coverage":   record.TypeCoverage,
			}),
			EnhancedTypes: []record.ResourceType{
				record.TypeCarePlan, record.TypeDiagnosticReport,
				record.TypeProvenance, record.TypeCoverage,
			},
		},
		&Profile{
			Vendor:         VendorAthenaHealth,
			KickoffPaths:   standardKickoffPaths,
			CallDelay:      140 * time.Millisecond,
			TenantHeader:   "X-Practice-ID",
			PerRecordDelay: true,
			TypeMap:        baselineTypeMap(),
			EnhancedTypes: []record.ResourceType{
				record.TypeCarePlan, record.TypeDiagnosticReport,
			},
		},
		&Profile{
			Vendor:       VendorEClinicalWorks,
			KickoffPaths: standardKickoffPaths,
			CallDelay:    125 * time.Millisecond,
			TypeMap:      baselineTypeMap(),
			EnhancedTypes: []record.ResourceType{
				record.TypeCarePlan, record.TypeDiagnosticReport,
			},
		},
	)
}
