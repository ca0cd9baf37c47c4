package extract

import (
	"github.com/ehrsync/ehrsync/internal/domain/record"
)

// GoalExtractor pulls goal-tracking detail: lifecycle, achievement status,
// and measurable targets.
type GoalExtractor struct{}

func (e *GoalExtractor) ResourceType() record.ResourceType {
	return record.TypeGoal
}

func (e *GoalExtractor) Extract(raw map[string]interface{}) (map[string]interface{}, error) {
	out := map[string]interface{}{
		"lifecycle_status": getString(raw, "lifecycleStatus"),
	}

	if ach := codeableText(getMap(raw, "achievementStatus")); ach != "" {
		out["achievement_status"] = ach
	}
	if desc := codeableText(getMap(raw, "description")); desc != "" {
		out["description"] = desc
	}
	if start := getString(raw, "startDate"); start != "" {
		out["start_date"] = start
	}

	var targets []map[string]interface{}
	for _, t := range getSlice(raw, "target") {
		target, ok := t.(map[string]interface{})
		if !ok {
			continue
		}
		entry := map[string]interface{}{}
		if m := codeableText(getMap(target, "measure")); m != "" {
			entry["measure"] = m
		}
		if due := getString(target, "dueDate"); due != "" {
			entry["due_date"] = due
		}
		if qty := getMap(target, "detailQuantity"); qty != nil {
			entry["detail_value"] = qty["value"]
			entry["detail_unit"] = getString(qty, "unit")
		}
		if s := getString(target, "detailString"); s != "" {
			entry["detail"] = s
		}
		if len(entry) > 0 {
			targets = append(targets, entry)
		}
	}
	if len(targets) > 0 {
		out["targets"] = targets
	}

	return out, nil
}
