package runner

import (
	"fmt"
	"strings"
)

// parseKeyValueFile reads the GITHUB_ENV / GITHUB_OUTPUT format: NAME=value lines, or
// multi-line values written as
//
//	NAME<<DELIMITER
//	line 1
//	line 2
//	DELIMITER
func parseKeyValueFile(data string) (map[string]string, error) {
	values := make(map[string]string)
	lines := strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n")

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}

		eq := strings.Index(line, "=")
		heredoc := strings.Index(line, "<<")
		if heredoc > 0 && (eq < 0 || heredoc < eq) {
			name := line[:heredoc]
			delimiter := line[heredoc+2:]
			if delimiter == "" {
				return nil, fmt.Errorf("line %d: empty delimiter for %q", i+1, name)
			}

			var body []string
			closed := false
			for i++; i < len(lines); i++ {
				if lines[i] == delimiter {
					closed = true
					break
				}
				body = append(body, lines[i])
			}
			if !closed {
				return nil, fmt.Errorf("value of %q is missing its closing delimiter %q", name, delimiter)
			}
			if err := setValue(values, name, strings.Join(body, "\n")); err != nil {
				return nil, err
			}
			continue
		}

		if eq <= 0 {
			return nil, fmt.Errorf("line %d: expected NAME=value, got %q", i+1, line)
		}
		if err := setValue(values, line[:eq], line[eq+1:]); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func setValue(values map[string]string, name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, " \t") {
		return fmt.Errorf("invalid name %q", name)
	}
	values[name] = value
	return nil
}

// parsePathFile reads GITHUB_PATH: one directory per line, in the order written.
func parsePathFile(data string) []string {
	var dirs []string
	for _, line := range strings.Split(data, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			dirs = append(dirs, line)
		}
	}
	return dirs
}
