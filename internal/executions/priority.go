package executions

import "strings"

// longRunningMarkers are substrings that suggest a submission is not a short
// interactive snippet, per spec §4.2 ("lower when the code matches obvious
// long-running markers").
var longRunningMarkers = []string{
	"time.sleep", "sleep ", "while true", "while True", "for (;;)",
	"requests.get", "requests.post", "urlopen", "server.serve_forever",
	"input(", "subprocess.run", "os.system",
}

// derivePriority scores a submission 1..10: higher for short interactive
// snippets, lower when it matches an obvious long-running marker.
func derivePriority(code string) int {
	const (
		base = 5
		max  = 10
		min  = 1
	)
	priority := base

	lines := 0
	for _, l := range splitLines(code) {
		if strings.TrimSpace(l) != "" {
			lines++
		}
	}
	switch {
	case lines <= 1:
		priority += 3
	case lines <= 5:
		priority += 1
	case lines > 30:
		priority -= 2
	}

	lower := strings.ToLower(code)
	for _, marker := range longRunningMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			priority -= 3
			break
		}
	}

	if priority > max {
		priority = max
	}
	if priority < min {
		priority = min
	}
	return priority
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}
