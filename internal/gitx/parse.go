package gitx

import (
	"strconv"
	"strings"
)

// ParseRevListCount parses the output of:
//
//	git rev-list --left-right --count <left>...<right>
//
// Returns (ahead, behind, ok).
func ParseRevListCount(output string) (int, int, bool) {
	fields := strings.Fields(output)
	if len(fields) != 2 {
		return 0, 0, false
	}
	ahead, errA := strconv.Atoi(fields[0])
	behind, errB := strconv.Atoi(fields[1])
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return ahead, behind, true
}

// ParseLines splits command output into trimmed non-empty lines.
func ParseLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
