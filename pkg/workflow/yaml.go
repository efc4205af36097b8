package workflow

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// StringMap decodes a mapping of scalars keeping the literal text of every value,
// so `lfs: true` and `python-version: 3.10` arrive as "true" and "3.10".
type StringMap map[string]string

// StringList accepts either a single scalar or a sequence of scalars.
type StringList []string

func (m *StringMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	out := make(StringMap, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value of %q must be a scalar", value.Line, key.Value)
		}
		if _, exists := out[key.Value]; exists {
			return fmt.Errorf("line %d: duplicate key %q", key.Line, key.Value)
		}
		out[key.Value] = scalarText(value)
	}
	*m = out
	return nil
}

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = StringList{node.Value}
	case yaml.SequenceNode:
		values, err := scalarSequence(node)
		if err != nil {
			return err
		}
		*l = values
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
	return nil
}

func (l StringList) MarshalYAML() (any, error) {
	if len(l) == 1 {
		return l[0], nil
	}
	return []string(l), nil
}

func (t *Triggers) UnmarshalYAML(node *yaml.Node) error {
	out := make(Triggers)
	switch node.Kind {
	case yaml.ScalarNode:
		out[node.Value] = nil
	case yaml.SequenceNode:
		names, err := scalarSequence(node)
		if err != nil {
			return err
		}
		for _, name := range names {
			out[name] = nil
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if _, exists := out[key.Value]; exists {
				return fmt.Errorf("line %d: duplicate event %q", key.Line, key.Value)
			}
			if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
				out[key.Value] = nil
				continue
			}
			filter := &EventFilter{}
			if err := decodeStrict(value, filter); err != nil {
				return fmt.Errorf("event %q: %w", key.Value, err)
			}
			out[key.Value] = filter
		}
	default:
		return fmt.Errorf("line %d: 'on' must be an event name, a list or a mapping", node.Line)
	}
	*t = out
	return nil
}

func (j *Jobs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: 'jobs' must be a mapping", node.Line)
	}
	seen := make(map[string]bool)
	var out Jobs
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if seen[key.Value] {
			return fmt.Errorf("line %d: duplicate job %q", key.Line, key.Value)
		}
		seen[key.Value] = true

		job := &Job{}
		if err := decodeStrict(value, job); err != nil {
			return fmt.Errorf("job %q: %w", key.Value, err)
		}
		job.ID = key.Value
		out = append(out, job)
	}
	*j = out
	return nil
}

func (j Jobs) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, job := range j {
		value := &yaml.Node{}
		if err := value.Encode(job); err != nil {
			return nil, fmt.Errorf("encoding job %q: %w", job.ID, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: job.ID},
			value,
		)
	}
	return node, nil
}

func (m *Matrix) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: matrix must be a mapping", node.Line)
	}
	out := Matrix{}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if seen[key.Value] {
			return fmt.Errorf("line %d: duplicate matrix key %q", key.Line, key.Value)
		}
		seen[key.Value] = true

		switch key.Value {
		case "include", "exclude":
			var combos []StringMap
			if err := value.Decode(&combos); err != nil {
				return fmt.Errorf("matrix %s: %w", key.Value, err)
			}
			if key.Value == "include" {
				out.Include = combos
			} else {
				out.Exclude = combos
			}
		default:
			values, err := scalarSequence(value)
			if err != nil {
				return fmt.Errorf("matrix axis %q: %w", key.Value, err)
			}
			out.Axes = append(out.Axes, Axis{Name: key.Value, Values: values})
		}
	}
	*m = out
	return nil
}

func (m Matrix) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, axis := range m.Axes {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, v := range axis.Values {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: v})
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: axis.Name}, seq)
	}
	extras := []struct {
		name   string
		combos []StringMap
	}{
		{"include", m.Include},
		{"exclude", m.Exclude},
	}
	for _, extra := range extras {
		if len(extra.combos) == 0 {
			continue
		}
		value := &yaml.Node{}
		if err := value.Encode(extra.combos); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: extra.name}, value)
	}
	return node, nil
}

func scalarSequence(node *yaml.Node) ([]string, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: expected a list", node.Line)
	}
	values := make([]string, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: list entries must be scalars", item.Line)
		}
		values = append(values, scalarText(item))
	}
	return values, nil
}

func scalarText(node *yaml.Node) string {
	if node.Tag == "!!null" {
		return ""
	}
	return node.Value
}

// decodeStrict re-encodes node so that unknown keys are rejected below custom unmarshalers,
// where node.Decode would silently drop them.
func decodeStrict(node *yaml.Node, out any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	return decoder.Decode(out)
}
