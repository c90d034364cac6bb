package rules

import (
	"fmt"
	"strings"

	"cascade/pkg/domain"
)

// ConditionFunc evaluates one condition against an evaluation context.
// Evaluation is pure and read-only.
type ConditionFunc func(cfg map[string]any, c *Context) (bool, error)

// builtinConditions returns the condition dispatch table.
func builtinConditions() map[string]ConditionFunc {
	return map[string]ConditionFunc{
		"field_equals":   condFieldEquals,
		"field_contains": condFieldContains,
		"field_in_list":  condFieldInList,
		"user_role":      condUserRole,
		"time_range":     condTimeRange,
	}
}

func condFieldEquals(cfg map[string]any, c *Context) (bool, error) {
	field, err := cfgString(cfg, "field")
	if err != nil {
		return false, err
	}
	return c.Field(field) == cfgStringDefault(cfg, "value", ""), nil
}

func condFieldContains(cfg map[string]any, c *Context) (bool, error) {
	field, err := cfgString(cfg, "field")
	if err != nil {
		return false, err
	}
	return strings.Contains(c.Field(field), cfgStringDefault(cfg, "value", "")), nil
}

func condFieldInList(cfg map[string]any, c *Context) (bool, error) {
	field, err := cfgString(cfg, "field")
	if err != nil {
		return false, err
	}
	actual := c.Field(field)
	for _, v := range cfgStrings(cfg, "values") {
		if actual == v {
			return true, nil
		}
	}
	return false, nil
}

func condUserRole(cfg map[string]any, c *Context) (bool, error) {
	if c.User == nil {
		return false, nil
	}
	// Directory exposes no dedicated role field; managers are users that
	// other users report to, everyone else is a member.
	role := "member"
	if c.User.ManagerID == "" {
		role = "manager"
	}
	for _, r := range cfgStrings(cfg, "roles") {
		if role == r {
			return true, nil
		}
	}
	return false, nil
}

func condTimeRange(cfg map[string]any, c *Context) (bool, error) {
	start := cfgInt(cfg, "start_hour", 0)
	end := cfgInt(cfg, "end_hour", 24)
	hour := c.Now.Hour()
	return start <= hour && hour < end, nil
}

// --- Config access helpers ---
//
// Rule configs arrive from YAML as map[string]any, so values need tolerant
// coercion. A missing required key is a ConfigError.

func cfgString(cfg map[string]any, key string) (string, error) {
	if v, ok := cfg[key]; ok {
		return fmt.Sprintf("%v", v), nil
	}
	return "", &domain.ConfigError{Reason: fmt.Sprintf("missing %q", key)}
}

func cfgStringDefault(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return def
}

func cfgBool(cfg map[string]any, key string, def bool) bool {
	if v, ok := cfg[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func cfgInt(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func cfgFloat(cfg map[string]any, key string, def float64) float64 {
	switch v := cfg[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	default:
		return def
	}
}

func cfgStrings(cfg map[string]any, key string) []string {
	v, ok := cfg[key]
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	default:
		return nil
	}
}
