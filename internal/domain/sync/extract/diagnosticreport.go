package extract

import (
	"github.com/ehrsync/ehrsync/internal/domain/record"
)

// DiagnosticReportExtractor pulls report-level detail: the narrative
// conclusion, the result references, and who produced the report.
type DiagnosticReportExtractor struct{}

func (e *DiagnosticReportExtractor) ResourceType() record.ResourceType {
	return record.TypeDiagnosticReport
}

func (e *DiagnosticReportExtractor) Extract(raw map[string]interface{}) (map[string]interface{}, error) {
	out := map[string]interface{}{
		"status": getString(raw, "status"),
	}

	if code := codeableText(getMap(raw, "code")); code != "" {
		out["report"] = code
	}
	if effective := getString(raw, "effectiveDateTime"); effective != "" {
		out["effective"] = effective
	}
	if issued := getString(raw, "issued"); issued != "" {
		out["issued"] = issued
	}
	if conclusion := getString(raw, "conclusion"); conclusion != "" {
		out["conclusion"] = conclusion
	}

	var categories []string
	for _, c := range getSlice(raw, "category") {
		if cc, ok := c.(map[string]interface{}); ok {
			if text := codeableText(cc); text != "" {
				categories = append(categories, text)
			}
		}
	}
	if len(categories) > 0 {
		out["categories"] = categories
	}

	var performers []string
	for _, p := range getSlice(raw, "performer") {
		performer, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		if display := getString(performer, "display"); display != "" {
			performers = append(performers, display)
		} else if ref := getString(performer, "reference"); ref != "" {
			performers = append(performers, ref)
		}
	}
	if len(performers) > 0 {
		out["performers"] = performers
	}

	var results []string
	for _, r := range getSlice(raw, "result") {
		result, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		if display := getString(result, "display"); display != "" {
			results = append(results, display)
		} else if ref := getString(result, "reference"); ref != "" {
			results = append(results, ref)
		}
	}
	if len(results) > 0 {
		out["results"] = results
	}

	return out, nil
}
