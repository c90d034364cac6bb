package rules

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"cascade/pkg/domain"
)

// Registry answers whether a condition or action type has a registered
// handler. *Engine implements it.
type Registry interface {
	KnownCondition(condType string) bool
	KnownAction(actionType string) bool
}

// ruleDoc is the file shape: a document with a top-level rules list.
type ruleDoc struct {
	Rules []Rule `yaml:"rules"`
}

// UnmarshalYAML decodes a rule with active defaulting to true when the
// field is omitted.
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	type plain Rule
	if err := value.Decode((*plain)(r)); err != nil {
		return err
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == "active" {
			return nil
		}
	}
	r.Active = true
	return nil
}

// LoadDir loads every .yaml/.yml file in dir, in name order. A rule that
// fails validation aborts the load; partial rule sets are never returned.
func LoadDir(dir string, reg Registry) ([]Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read rules dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var rules []Rule
	for _, name := range names {
		loaded, err := LoadFile(filepath.Join(dir, name), reg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		rules = append(rules, loaded...)
	}
	return rules, nil
}

// LoadFile parses one rule file and validates each rule. Rules without an
// explicit id are assigned one.
func LoadFile(path string, reg Registry) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}

	var doc ruleDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}

	for i := range doc.Rules {
		rule := &doc.Rules[i]
		if rule.ID == "" {
			rule.ID = uuid.New().String()
		}
		if err := Validate(rule, reg); err != nil {
			return nil, err
		}
	}
	return doc.Rules, nil
}

// Validate checks a rule's shape against the registry. reg may be nil to
// skip the handler-existence checks.
func Validate(rule *Rule, reg Registry) error {
	if rule.Name == "" {
		return &domain.ConfigError{RuleID: rule.ID, Reason: "rule name is required"}
	}
	if !rule.TriggerType.Valid() {
		return &domain.ConfigError{
			RuleID: rule.ID,
			Reason: fmt.Sprintf("unknown trigger type %q", rule.TriggerType),
		}
	}
	if len(rule.Actions) == 0 {
		return &domain.ConfigError{RuleID: rule.ID, Reason: "rule has no actions"}
	}
	if reg == nil {
		return nil
	}
	for _, cond := range rule.Conditions {
		if !reg.KnownCondition(cond.Type) {
			return &domain.ConfigError{
				RuleID: rule.ID,
				Reason: fmt.Sprintf("unknown condition type %q", cond.Type),
			}
		}
	}
	for _, action := range rule.Actions {
		if !reg.KnownAction(action.Type) {
			return &domain.ConfigError{
				RuleID: rule.ID,
				Reason: fmt.Sprintf("unknown action type %q", action.Type),
			}
		}
	}
	return nil
}
