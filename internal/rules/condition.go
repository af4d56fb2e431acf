package rules

import (
	"encoding/json"
	"fmt"

	"github.com/jask/jasksched/internal/recur"
)

// Field is the semantic role a condition applies to.
type Field string

const (
	FieldDate    Field = "date"
	FieldPayee   Field = "payee"
	FieldAccount Field = "account"
	FieldAmount  Field = "amount"
	FieldNotes   Field = "notes"
)

// Op is a condition operator.
type Op string

const (
	OpIs        Op = "is"
	OpIsApprox  Op = "isapprox"
	OpIsBetween Op = "isbetween"
	OpContains  Op = "contains"
)

// ActionLinkSchedule connects matching transactions to a schedule.
const ActionLinkSchedule = "link-schedule"

// Condition is the serialized form stored in a rule's condition list. Value
// stays raw until a field-specific decode; Type is a legacy tag carried for
// compatibility and ignored when comparing conditions.
type Condition struct {
	Field Field           `json:"field"`
	Op    Op              `json:"op"`
	Value json.RawMessage `json:"value"`
	Type  string          `json:"type,omitempty"`
}

// Action is an entry in a rule's action list.
type Action struct {
	Op    string `json:"op"`
	Value string `json:"value"`
}

// DateCondition is the decoded date variant.
type DateCondition struct {
	Op    Op
	Value recur.DateValue
}

// ScheduleFields is the semantic classification of a rule's conditions as
// seen by the schedule engine.
type ScheduleFields struct {
	Date    *DateCondition
	Payee   string
	Account string
	Amount  *AmountCondition
}

// DecodeDate decodes a date condition's value: either an ISO date string
// (one-off) or a recurrence config object.
func DecodeDate(c Condition) (*DateCondition, error) {
	if len(c.Value) == 0 || string(c.Value) == "null" {
		return nil, fmt.Errorf("date condition has no value")
	}
	var s string
	if err := json.Unmarshal(c.Value, &s); err == nil {
		d, err := recur.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("date condition value %q: %w", s, err)
		}
		return &DateCondition{Op: c.Op, Value: recur.DateValue{Date: d}}, nil
	}
	var cfg recur.Config
	if err := json.Unmarshal(c.Value, &cfg); err != nil {
		return nil, fmt.Errorf("decode date condition: %w", err)
	}
	if cfg.Frequency == "" {
		// An object without a frequency is a one-off anchored at start.
		d, err := recur.ParseDate(cfg.Start)
		if err != nil {
			return nil, fmt.Errorf("date condition start %q: %w", cfg.Start, err)
		}
		return &DateCondition{Op: c.Op, Value: recur.DateValue{Date: d}}, nil
	}
	return &DateCondition{Op: c.Op, Value: recur.DateValue{Recur: &cfg}}, nil
}

// EncodeDate builds the stored condition for a decoded date value.
func EncodeDate(dc DateCondition) (Condition, error) {
	var raw []byte
	var err error
	if dc.Value.Recurring() {
		raw, err = json.Marshal(dc.Value.Recur)
	} else {
		raw, err = json.Marshal(recur.FormatDate(dc.Value.Date))
	}
	if err != nil {
		return Condition{}, err
	}
	return Condition{Field: FieldDate, Op: dc.Op, Value: raw, Type: "date"}, nil
}

// Classify splits a condition list into the semantic roles the schedule
// engine cares about. Conditions outside those roles are left alone and are
// preserved by MergeConditions.
func Classify(conds []Condition) (ScheduleFields, error) {
	var out ScheduleFields
	for _, c := range conds {
		switch c.Field {
		case FieldDate:
			dc, err := DecodeDate(c)
			if err != nil {
				return ScheduleFields{}, err
			}
			out.Date = dc
		case FieldPayee:
			_ = json.Unmarshal(c.Value, &out.Payee)
		case FieldAccount:
			_ = json.Unmarshal(c.Value, &out.Account)
		case FieldAmount:
			ac, err := DecodeAmount(c)
			if err != nil {
				return ScheduleFields{}, err
			}
			out.Amount = ac
		}
	}
	return out, nil
}

// StringCondition builds an id-valued condition for payee/account fields.
func StringCondition(field Field, value string) Condition {
	raw, _ := json.Marshal(value)
	return Condition{Field: field, Op: OpIs, Value: raw, Type: "id"}
}

// DecodeConditions parses the JSON condition list stored on a rule row.
func DecodeConditions(raw string) ([]Condition, error) {
	if raw == "" {
		return nil, nil
	}
	var out []Condition
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	return out, nil
}

// EncodeConditions renders a condition list for storage.
func EncodeConditions(conds []Condition) (string, error) {
	if conds == nil {
		conds = []Condition{}
	}
	raw, err := json.Marshal(conds)
	if err != nil {
		return "", fmt.Errorf("encode conditions: %w", err)
	}
	return string(raw), nil
}

// DecodeActions parses the JSON action list stored on a rule row.
func DecodeActions(raw string) ([]Action, error) {
	if raw == "" {
		return nil, nil
	}
	var out []Action
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	return out, nil
}

// EncodeActions renders an action list for storage.
func EncodeActions(actions []Action) (string, error) {
	if actions == nil {
		actions = []Action{}
	}
	raw, err := json.Marshal(actions)
	if err != nil {
		return "", fmt.Errorf("encode actions: %w", err)
	}
	return string(raw), nil
}

// LinkedScheduleID returns the schedule a rule's actions link to, if any.
func LinkedScheduleID(actions []Action) (string, bool) {
	for _, a := range actions {
		if a.Op == ActionLinkSchedule && a.Value != "" {
			return a.Value, true
		}
	}
	return "", false
}
