package matrix

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/greboid/actrun/pkg/util"
	"github.com/greboid/actrun/pkg/workflow"
)

// MaxCombinations matches the per-job limit GitHub enforces.
const MaxCombinations = 256

// Combination is one assignment of matrix values. Keys keeps axis order followed by
// keys added through include entries.
type Combination struct {
	Keys   []string
	Values map[string]string
}

func (c Combination) Get(key string) (string, bool) {
	value, ok := c.Values[key]
	return value, ok
}

// Label renders the values in key order, e.g. "3.8, ubuntu-latest".
func (c Combination) Label() string {
	parts := make([]string, 0, len(c.Keys))
	for _, key := range c.Keys {
		parts = append(parts, c.Values[key])
	}
	return strings.Join(parts, ", ")
}

func (c Combination) IsEmpty() bool {
	return len(c.Keys) == 0
}

func (c Combination) clone() Combination {
	return Combination{
		Keys:   slices.Clone(c.Keys),
		Values: maps.Clone(c.Values),
	}
}

func (c *Combination) set(key, value string) {
	if c.Values == nil {
		c.Values = make(map[string]string)
	}
	if _, exists := c.Values[key]; !exists {
		c.Keys = append(c.Keys, key)
	}
	c.Values[key] = value
}

// Expand returns the job instances described by m, in declaration order: the cartesian
// product of the axes (first axis varies slowest), minus exclude entries, then include
// entries merged in. A nil matrix yields a single empty combination.
func Expand(m *workflow.Matrix) ([]Combination, error) {
	if m.IsEmpty() {
		return []Combination{{}}, nil
	}

	axisNames := make([]string, 0, len(m.Axes))
	for _, axis := range m.Axes {
		axisNames = append(axisNames, axis.Name)
	}

	if !withinLimit(m.Axes) {
		return nil, fmt.Errorf("matrix expands to more than %d combinations, the limit is %d", MaxCombinations, MaxCombinations)
	}
	combos := product(m.Axes)

	for i, exclude := range m.Exclude {
		for key := range exclude {
			if !slices.Contains(axisNames, key) {
				return nil, fmt.Errorf("exclude entry %d references unknown axis %q", i+1, key)
			}
		}
		combos = slices.DeleteFunc(combos, func(c Combination) bool {
			return matches(c, exclude)
		})
	}

	base := len(combos)
	for _, include := range m.Include {
		combos = applyInclude(combos, base, axisNames, include)
	}

	if len(combos) == 0 {
		return nil, fmt.Errorf("matrix has no combinations left after exclude")
	}
	if len(combos) > MaxCombinations {
		return nil, fmt.Errorf("matrix expands to %d combinations, the limit is %d", len(combos), MaxCombinations)
	}

	return combos, nil
}

// withinLimit reports whether the product of the axes stays within MaxCombinations,
// without building it.
func withinLimit(axes []workflow.Axis) bool {
	n := 1
	for _, axis := range axes {
		n *= len(axis.Values)
		if n > MaxCombinations {
			return false
		}
	}
	return true
}

func product(axes []workflow.Axis) []Combination {
	if len(axes) == 0 {
		return nil
	}

	combos := []Combination{{}}
	for _, axis := range axes {
		next := make([]Combination, 0, len(combos)*len(axis.Values))
		for _, combo := range combos {
			for _, value := range axis.Values {
				c := combo.clone()
				c.set(axis.Name, value)
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}

func matches(c Combination, entry workflow.StringMap) bool {
	for key, value := range entry {
		if got, ok := c.Values[key]; !ok || got != value {
			return false
		}
	}
	return true
}

// applyInclude extends every original combination whose axis values agree with entry.
// Values for keys outside the axes may be added or replace values added by earlier
// includes. An entry that extends nothing becomes a new combination.
func applyInclude(combos []Combination, base int, axisNames []string, entry workflow.StringMap) []Combination {
	keys := util.SortedKeys(entry)

	extended := false
	for i := 0; i < base && i < len(combos); i++ {
		compatible := true
		for _, key := range keys {
			if !slices.Contains(axisNames, key) {
				continue
			}
			if got, ok := combos[i].Values[key]; ok && got != entry[key] {
				compatible = false
				break
			}
		}
		if !compatible {
			continue
		}
		for _, key := range keys {
			if slices.Contains(axisNames, key) {
				continue
			}
			combos[i].set(key, entry[key])
		}
		extended = true
	}

	if extended {
		return combos
	}

	added := Combination{}
	for _, name := range axisNames {
		if value, ok := entry[name]; ok {
			added.set(name, value)
		}
	}
	for _, key := range keys {
		added.set(key, entry[key])
	}
	return append(combos, added)
}
