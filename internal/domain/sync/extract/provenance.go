package extract

import (
	"github.com/ehrsync/ehrsync/internal/domain/record"
)

// ProvenanceExtractor captures the audit trail: when the target resources
// were recorded and which agents touched them.
type ProvenanceExtractor struct{}

func (e *ProvenanceExtractor) ResourceType() record.ResourceType {
	return record.TypeProvenance
}

func (e *ProvenanceExtractor) Extract(raw map[string]interface{}) (map[string]interface{}, error) {
	out := map[string]interface{}{}

	if recorded := getString(raw, "recorded"); recorded != "" {
		out["recorded"] = recorded
	}

	var targets []string
	for _, t := range getSlice(raw, "target") {
		if target, ok := t.(map[string]interface{}); ok {
			if ref := getString(target, "reference"); ref != "" {
				targets = append(targets, ref)
			}
		}
	}
	if len(targets) > 0 {
		out["targets"] = targets
	}

	var agents []map[string]interface{}
	for _, a := range getSlice(raw, "agent") {
		agent, ok := a.(map[string]interface{})
		if !ok {
			continue
		}
		entry := map[string]interface{}{}
		if agentType := codeableText(getMap(agent, "type")); agentType != "" {
			entry["type"] = agentType
		}
		if who := getMap(agent, "who"); who != nil {
			if display := getString(who, "display"); display != "" {
				entry["who"] = display
			} else if ref := getString(who, "reference"); ref != "" {
				entry["who"] = ref
			}
		}
		if onBehalfOf := getMap(agent, "onBehalfOf"); onBehalfOf != nil {
			if display := getString(onBehalfOf, "display"); display != "" {
				entry["on_behalf_of"] = display
			}
		}
		if len(entry) > 0 {
			agents = append(agents, entry)
		}
	}
	if len(agents) > 0 {
		out["agents"] = agents
	}

	return out, nil
}
