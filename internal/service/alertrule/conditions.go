package alertrule

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/worldwatch/intel-backend/internal/domain/event"
)

// ruleMatches combines the rule's condition results under its logic.
func ruleMatches(rule *Rule, ev *event.ClusteredEvent) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	for _, cond := range rule.Conditions {
		matched := conditionMatches(cond, ev)
		if rule.Logic == LogicAny && matched {
			return true
		}
		if rule.Logic != LogicAny && !matched {
			return false
		}
	}
	// ANY fell through without a match; ALL fell through without a miss.
	return rule.Logic != LogicAny
}

func conditionMatches(cond Condition, ev *event.ClusteredEvent) bool {
	switch cond.Type {
	case ConditionTitle:
		return compareString(cond, ev.Title)
	case ConditionSource:
		return compareString(cond, ev.Source)
	case ConditionThreatLevel:
		if ev.Threat == nil {
			return false
		}
		return compareString(cond, string(ev.Threat.Level))
	case ConditionCategory:
		if ev.Threat == nil {
			return false
		}
		return compareString(cond, ev.Threat.Category)
	case ConditionVelocity:
		return compareString(cond, string(ev.Velocity))
	case ConditionSourceCount:
		return compareNumber(cond, float64(ev.SourceCount))
	case ConditionKeyword:
		// Keyword scans the primary title and every raw item title.
		if compareString(cond, ev.Title) {
			return true
		}
		for _, item := range ev.AllItems {
			if compareString(cond, item.Title) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func compareString(cond Condition, candidate string) bool {
	value := cond.Text
	if !cond.CaseSensitive {
		candidate = strings.ToLower(candidate)
		value = strings.ToLower(value)
	}

	switch cond.Operator {
	case OpContains:
		return value != "" && strings.Contains(candidate, value)
	case OpEquals:
		return candidate == value
	case OpStartsWith:
		return value != "" && strings.HasPrefix(candidate, value)
	case OpEndsWith:
		return value != "" && strings.HasSuffix(candidate, value)
	case OpRegex:
		pattern := cond.Text
		if !cond.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			// Invalid patterns evaluate to false rather than failing the
			// whole rule set.
			return false
		}
		return re.MatchString(candidate)
	case OpGreaterThan, OpLessThan:
		// Numeric operators against a string field: compare parseable
		// candidates, otherwise no match.
		n, err := strconv.ParseFloat(candidate, 64)
		if err != nil {
			return false
		}
		return compareNumber(cond, n)
	default:
		return false
	}
}

func compareNumber(cond Condition, candidate float64) bool {
	switch cond.Operator {
	case OpEquals:
		return candidate == cond.Number
	case OpGreaterThan:
		return candidate > cond.Number
	case OpLessThan:
		return candidate < cond.Number
	default:
		return false
	}
}
