package extract

import (
	"github.com/ehrsync/ehrsync/internal/domain/record"
)

// CarePlanExtractor pulls the plan's activities and addressed conditions
// into a display-ready structure.
type CarePlanExtractor struct{}

func (e *CarePlanExtractor) ResourceType() record.ResourceType {
	return record.TypeCarePlan
}

func (e *CarePlanExtractor) Extract(raw map[string]interface{}) (map[string]interface{}, error) {
	out := map[string]interface{}{
		"status": getString(raw, "status"),
		"intent": getString(raw, "intent"),
	}

	if period := getMap(raw, "period"); period != nil {
		out["period_start"] = getString(period, "start")
		out["period_end"] = getString(period, "end")
	}

	var activities []map[string]interface{}
	for _, a := range getSlice(raw, "activity") {
		activity, ok := a.(map[string]interface{})
		if !ok {
			continue
		}
		detail := getMap(activity, "detail")
		if detail == nil {
			// Activity referencing an external resource rather than
			// inlining detail.
			if ref := reference(activity, "reference"); ref != "" {
				activities = append(activities, map[string]interface{}{"reference": ref})
			}
			continue
		}
		entry := map[string]interface{}{
			"status":      getString(detail, "status"),
			"description": getString(detail, "description"),
		}
		if code := codeableText(getMap(detail, "code")); code != "" {
			entry["code"] = code
		}
		if scheduled := getMap(detail, "scheduledPeriod"); scheduled != nil {
			entry["scheduled_start"] = getString(scheduled, "start")
			entry["scheduled_end"] = getString(scheduled, "end")
		}
		activities = append(activities, entry)
	}
	if len(activities) > 0 {
		out["activities"] = activities
	}

	var addresses []string
	for _, a := range getSlice(raw, "addresses") {
		if ref, ok := a.(map[string]interface{}); ok {
			if r := getString(ref, "reference"); r != "" {
				addresses = append(addresses, r)
			}
		}
	}
	if len(addresses) > 0 {
		out["addresses"] = addresses
	}

	return out, nil
}
