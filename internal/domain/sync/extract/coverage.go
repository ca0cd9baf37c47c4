package extract

import (
	"github.com/ehrsync/ehrsync/internal/domain/record"
)

// CoverageExtractor pulls insurance coverage detail: payor, plan class,
// subscriber, and coverage period.
type CoverageExtractor struct{}

func (e *CoverageExtractor) ResourceType() record.ResourceType {
	return record.TypeCoverage
}

func (e *CoverageExtractor) Extract(raw map[string]interface{}) (map[string]interface{}, error) {
	out := map[string]interface{}{
		"status": getString(raw, "status"),
	}

	if t := codeableText(getMap(raw, "type")); t != "" {
		out["coverage_type"] = t
	}
	if sub := getString(raw, "subscriberId"); sub != "" {
		out["subscriber_id"] = sub
	}
	if rel := codeableText(getMap(raw, "relationship")); rel != "" {
		out["relationship"] = rel
	}
	if period := getMap(raw, "period"); period != nil {
		out["period_start"] = getString(period, "start")
		out["period_end"] = getString(period, "end")
	}

	var payors []string
	for _, p := range getSlice(raw, "payor") {
		payor, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		if display := getString(payor, "display"); display != "" {
			payors = append(payors, display)
		} else if ref := getString(payor, "reference"); ref != "" {
			payors = append(payors, ref)
		}
	}
	if len(payors) > 0 {
		out["payors"] = payors
	}

	var classes []map[string]interface{}
	for _, c := range getSlice(raw, "class") {
		class, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		classes = append(classes, map[string]interface{}{
			"type":  codeableText(getMap(class, "type")),
			"value": getString(class, "value"),
			"name":  getString(class, "name"),
		})
	}
	if len(classes) > 0 {
		out["classes"] = classes
	}

	return out, nil
}
