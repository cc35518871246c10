package rule

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind names a rule predicate, e.g. "sessionCount".
type Kind string

// Rule is one (kind, threshold) entry of a badge rule-set.
type Rule struct {
	Kind      Kind    `json:"type" yaml:"type" bson:"type"`
	Threshold float64 `json:"threshold" yaml:"threshold" bson:"threshold"`
}

// RuleSet is the ordered list of rules a badge requires. All rules must hold.
//
// It is written as a JSON/YAML object ({"sessionCount": 3, "calories": 500})
// and keeps the declared key order.
type RuleSet []Rule

// Kinds returns the rule kinds in declared order.
func (rs RuleSet) Kinds() []Kind {
	kinds := make([]Kind, 0, len(rs))
	for _, r := range rs {
		kinds = append(kinds, r.Kind)
	}
	return kinds
}

// Clone returns a copy that shares no memory with rs.
func (rs RuleSet) Clone() RuleSet {
	if rs == nil {
		return nil
	}
	out := make(RuleSet, len(rs))
	copy(out, rs)
	return out
}

// Validate checks for empty and duplicate kinds.
func (rs RuleSet) Validate() error {
	seen := make(map[Kind]bool, len(rs))
	for _, r := range rs {
		if r.Kind == "" {
			return fmt.Errorf("rule with empty type found")
		}
		if seen[r.Kind] {
			return fmt.Errorf("duplicate rule type: %s", r.Kind)
		}
		seen[r.Kind] = true
	}
	return nil
}

// MarshalJSON writes the rule-set as an object in declared order.
func (rs RuleSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range rs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(r.Kind))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Threshold)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping key order. The list form
// [{"type": "sessionCount", "threshold": 3}] is accepted as well.
func (rs *RuleSet) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*rs = nil
		return nil
	}

	if trimmed[0] == '[' {
		var list []Rule
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("invalid rule list: %w", err)
		}
		*rs = list
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("rule-set must be an object, got %v", tok)
	}

	out := RuleSet{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected rule key %v", keyTok)
		}

		var threshold float64
		if err := dec.Decode(&threshold); err != nil {
			return fmt.Errorf("rule %s: threshold must be a number: %w", key, err)
		}
		out = append(out, Rule{Kind: Kind(key), Threshold: threshold})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*rs = out
	return nil
}

// UnmarshalYAML reads a mapping node, keeping key order.
func (rs *RuleSet) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var list []Rule
		if err := value.Decode(&list); err != nil {
			return err
		}
		*rs = list
		return nil
	}

	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: rules must be a mapping", value.Line)
	}

	out := make(RuleSet, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valNode := value.Content[i], value.Content[i+1]

		var threshold float64
		if err := valNode.Decode(&threshold); err != nil {
			return fmt.Errorf("line %d: rule %s: threshold must be a number", valNode.Line, keyNode.Value)
		}
		out = append(out, Rule{Kind: Kind(keyNode.Value), Threshold: threshold})
	}

	*rs = out
	return nil
}

// Value stores the rule-set as JSON text.
func (rs RuleSet) Value() (driver.Value, error) {
	data, err := rs.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan reads a rule-set stored by Value.
func (rs *RuleSet) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*rs = nil
		return nil
	case string:
		return rs.UnmarshalJSON([]byte(v))
	case []byte:
		return rs.UnmarshalJSON(v)
	default:
		return fmt.Errorf("cannot scan %T into RuleSet", src)
	}
}
