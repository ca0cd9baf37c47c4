package extract

import (
	"github.com/ehrsync/ehrsync/internal/domain/record"
)

// ServiceRequestExtractor pulls order/referral detail: what was ordered,
// by whom, for when, and at what priority.
type ServiceRequestExtractor struct{}

func (e *ServiceRequestExtractor) ResourceType() record.ResourceType {
	return record.TypeServiceRequest
}

func (e *ServiceRequestExtractor) Extract(raw map[string]interface{}) (map[string]interface{}, error) {
	out := map[string]interface{}{
		"status": getString(raw, "status"),
		"intent": getString(raw, "intent"),
	}

	if code := codeableText(getMap(raw, "code")); code != "" {
		out["ordered"] = code
	}
	if priority := getString(raw, "priority"); priority != "" {
		out["priority"] = priority
	}
	if authored := getString(raw, "authoredOn"); authored != "" {
		out["authored_on"] = authored
	}
	if occurrence := getString(raw, "occurrenceDateTime"); occurrence != "" {
		out["occurrence"] = occurrence
	}
	if requester := getMap(raw, "requester"); requester != nil {
		if display := getString(requester, "display"); display != "" {
			out["requester"] = display
		} else if ref := getString(requester, "reference"); ref != "" {
			out["requester"] = ref
		}
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

	var reasons []string
	for _, r := range getSlice(raw, "reasonCode") {
		if cc, ok := r.(map[string]interface{}); ok {
			if text := codeableText(cc); text != "" {
				reasons = append(reasons, text)
			}
		}
	}
	if len(reasons) > 0 {
		out["reasons"] = reasons
	}

	return out, nil
}
