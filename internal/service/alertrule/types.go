package alertrule

import "time"

// ConditionType selects which event field a condition inspects.
type ConditionType string

const (
	ConditionTitle       ConditionType = "title"
	ConditionSource      ConditionType = "source"
	ConditionThreatLevel ConditionType = "threatLevel"
	ConditionCategory    ConditionType = "category"
	ConditionSourceCount ConditionType = "sourceCount"
	ConditionVelocity    ConditionType = "velocity"
	ConditionKeyword     ConditionType = "keyword"
)

// Operator is the comparison applied by a condition. String operators apply
// to text fields; numeric operators apply to sourceCount.
type Operator string

const (
	OpContains    Operator = "contains"
	OpEquals      Operator = "equals"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"
	OpRegex       Operator = "regex"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
)

// Logic controls how a rule combines its conditions.
type Logic string

const (
	LogicAll Logic = "ALL"
	LogicAny Logic = "ANY"
)

// Condition compares one event field against a typed value. Text is used by
// string operators, Number by numeric ones; the unused field stays zero.
type Condition struct {
	Type          ConditionType `json:"type" validate:"required,oneof=title source threatLevel category sourceCount velocity keyword"`
	Operator      Operator      `json:"operator" validate:"required,oneof=contains equals startsWith endsWith regex greaterThan lessThan"`
	Text          string        `json:"text,omitempty"`
	Number        float64       `json:"number,omitempty"`
	CaseSensitive bool          `json:"case_sensitive,omitempty"`
}

// Actions describes what the dashboard should do when a rule matches.
type Actions struct {
	Notify         bool   `json:"notify"`
	HighlightColor string `json:"highlight_color,omitempty"`
	TargetPanel    string `json:"target_panel,omitempty"`
}

// Rule is a user-defined alert rule. TriggerCount is monotonically
// non-decreasing and is only mutated by RecordTrigger.
type Rule struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Description   string      `json:"description,omitempty"`
	Enabled       bool        `json:"enabled"`
	Conditions    []Condition `json:"conditions"`
	Logic         Logic       `json:"logic"`
	Actions       Actions     `json:"actions"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	LastTriggered *time.Time  `json:"last_triggered,omitempty"`
	TriggerCount  int64       `json:"trigger_count"`
}

// Match is the evaluation result handed to the coordinator for one matched
// rule.
type Match struct {
	RuleID         string `json:"rule_id"`
	RuleName       string `json:"rule_name"`
	HighlightColor string `json:"highlight_color,omitempty"`
}

// CreateInput carries the fields a user supplies when creating a rule.
type CreateInput struct {
	Name        string      `json:"name" validate:"required,max=200"`
	Description string      `json:"description,omitempty" validate:"max=2000"`
	Conditions  []Condition `json:"conditions" validate:"required,min=1,dive"`
	Logic       Logic       `json:"logic" validate:"required,oneof=ALL ANY"`
	Actions     Actions     `json:"actions"`
}

// UpdateInput is a partial update; nil fields are left untouched. ID,
// CreatedAt and TriggerCount are immutable.
type UpdateInput struct {
	Name        *string      `json:"name,omitempty" validate:"omitempty,max=200"`
	Description *string      `json:"description,omitempty" validate:"omitempty,max=2000"`
	Enabled     *bool        `json:"enabled,omitempty"`
	Conditions  *[]Condition `json:"conditions,omitempty" validate:"omitempty,min=1,dive"`
	Logic       *Logic       `json:"logic,omitempty" validate:"omitempty,oneof=ALL ANY"`
	Actions     *Actions     `json:"actions,omitempty"`
}
