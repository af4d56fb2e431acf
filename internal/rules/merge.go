package rules

import (
	"bytes"
	"encoding/json"
)

// MergeConditions folds new conditions into an existing list: a condition for
// a field already present replaces it in place, conditions for new fields are
// appended. Conditions the caller did not touch survive, so edits to a
// schedule never clobber extras added directly on its rule.
func MergeConditions(old, new []Condition) []Condition {
	out := make([]Condition, len(old))
	copy(out, old)
	for _, nc := range new {
		replaced := false
		for i, oc := range out {
			if oc.Field == nc.Field {
				out[i] = nc
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, nc)
		}
	}
	return out
}

// ConditionByField returns the first condition for field, if present.
func ConditionByField(conds []Condition, field Field) (Condition, bool) {
	for _, c := range conds {
		if c.Field == field {
			return c, true
		}
	}
	return Condition{}, false
}

// Equivalent compares two conditions on their substantive fields. The legacy
// Type tag is deliberately excluded; values are compared canonically so that
// formatting differences in the stored JSON don't register as changes.
func Equivalent(a, b Condition) bool {
	if a.Field != b.Field || a.Op != b.Op {
		return false
	}
	return bytes.Equal(canonicalValue(a.Value), canonicalValue(b.Value))
}

func canonicalValue(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
