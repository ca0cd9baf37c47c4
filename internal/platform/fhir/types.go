package fhir

import "encoding/json"

// ExportManifest is the body returned by a bulk export status endpoint once
// the export has completed, per the FHIR Bulk Data Access specification.
type ExportManifest struct {
	TransactionTime string           `json:"transactionTime"`
	Request         string           `json:"request,omitempty"`
	Output          []ManifestOutput `json:"output"`
	Error           []ManifestOutput `json:"error,omitempty"`
}

// ManifestOutput describes one NDJSON file produced by a bulk export.
type ManifestOutput struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Count int    `json:"count,omitempty"`
}

// Bundle is a FHIR searchset bundle, reduced to the fields the sync engine
// walks: entries and paging links.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        int           `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// BundleLink is a paging link on a searchset bundle.
type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// BundleEntry holds one resource in a searchset bundle. The resource is kept
// raw; the ingestion layer decides how to interpret it.
type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource"`
}

// NextLink returns the "next" paging URL, or empty when the last page has
// been reached.
func (b *Bundle) NextLink() string {
	for _, l := range b.Link {
		if l.Relation == "next" {
			return l.URL
		}
	}
	return ""
}
