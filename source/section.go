package source

import "strings"

// SplitSections splits markdown content into heading-delimited sections and
// collects each section's list items. Content before the first heading becomes
// a level-0 preamble section. Code fences are never split across sections.
func SplitSections(content string) []Section {
	lines := strings.Split(content, "\n")
	var sections []Section
	var current Section
	inCodeBlock := false

	flush := func() {
		if strings.TrimSpace(current.Content) != "" {
			current.Items = listItems(current.Content)
			sections = append(sections, current)
		}
	}

	for _, line := range lines {
		if isCodeFence(line) {
			inCodeBlock = !inCodeBlock
		}

		if !inCodeBlock && isHeading(line) {
			flush()

			level, heading := parseHeading(line)
			current = Section{
				Heading: heading,
				Level:   level,
				Content: line,
			}
			continue
		}

		if current.Content != "" {
			current.Content += "\n"
		}
		current.Content += line
	}

	flush()
	return sections
}

// listItems extracts bullet and numbered list entries from section content,
// skipping anything inside code fences.
func listItems(content string) []string {
	var items []string
	inCodeBlock := false

	for _, line := range strings.Split(content, "\n") {
		if isCodeFence(line) {
			inCodeBlock = !inCodeBlock
			continue
		}
		if inCodeBlock {
			continue
		}

		trimmed := strings.TrimSpace(line)
		if item, ok := stripListMarker(trimmed); ok {
			items = append(items, item)
		}
	}

	return items
}

// stripListMarker removes a leading bullet ("-", "*", "+") or numbered
// ("1.", "2)") marker and reports whether the line was a list entry.
func stripListMarker(line string) (string, bool) {
	if len(line) < 2 {
		return "", false
	}

	switch line[0] {
	case '-', '*', '+':
		if line[1] == ' ' {
			return strings.TrimSpace(line[2:]), true
		}
		return "", false
	}

	// Numbered markers: digits followed by '.' or ')' and a space
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i+1 >= len(line) {
		return "", false
	}
	if (line[i] == '.' || line[i] == ')') && line[i+1] == ' ' {
		return strings.TrimSpace(line[i+2:]), true
	}

	return "", false
}

// isCodeFence checks if a line is a code fence (``` or ~~~).
func isCodeFence(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

// isHeading checks if a line is a markdown heading.
func isHeading(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}

// parseHeading extracts the level and text from a heading line.
func parseHeading(line string) (int, string) {
	trimmed := strings.TrimSpace(line)
	level := 0
	for _, ch := range trimmed {
		if ch == '#' {
			level++
		} else {
			break
		}
	}
	if level > 6 {
		level = 6
	}

	text := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
	return level, text
}
