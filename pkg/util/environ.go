package util

import (
	"maps"
	"slices"
)

func SortedKeys(values map[string]string) []string {
	keys := slices.Collect(maps.Keys(values))
	slices.Sort(keys)
	if keys == nil {
		return []string{}
	}
	return keys
}

// MergeEnv layers the given maps, later maps overriding earlier ones.
func MergeEnv(layers ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, layer := range layers {
		maps.Copy(merged, layer)
	}
	return merged
}

// EnvList renders values as sorted KEY=VALUE pairs for exec.Cmd.Env.
func EnvList(values map[string]string) []string {
	list := make([]string, 0, len(values))
	for _, key := range SortedKeys(values) {
		list = append(list, key+"="+values[key])
	}
	return list
}
