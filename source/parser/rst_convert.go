package parser

import "strings"

// rstConverter tracks RST-to-markdown conversion state. RST derives heading
// levels from underline characters in order of first appearance, so the
// converter keeps a rune-to-level map as it goes.
type rstConverter struct {
	out         []string
	inCode      bool
	codeIndent  int
	levelByRune map[rune]int
	nextLevel   int
}

func newRSTConverter(capacity int) *rstConverter {
	return &rstConverter{
		out:         make([]string, 0, capacity),
		levelByRune: make(map[rune]int),
		nextLevel:   1,
	}
}

// convertToMarkdownStyle converts RST sections to markdown-style headings so
// the shared sectioner can process them.
func (p *RSTParser) convertToMarkdownStyle(content string) string {
	lines := strings.Split(content, "\n")
	c := newRSTConverter(len(lines))

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if c.codeDirective(line) {
			continue
		}
		if c.shortCodeBlock(i, lines) {
			continue
		}
		if c.inCode {
			c.codeLine(line)
			continue
		}
		if skip := c.sectionTitle(i, lines); skip > 0 {
			i += skip
			continue
		}
		if match := rstFieldList.FindStringSubmatch(line); match != nil {
			c.out = append(c.out, "**"+match[1]+":**"+match[2])
			continue
		}
		if rstDirective.MatchString(strings.TrimSpace(line)) {
			continue
		}

		c.out = append(c.out, line)
	}

	if c.inCode {
		c.out = append(c.out, "```")
	}

	return strings.Join(c.out, "\n")
}

// codeDirective handles a .. code-block:: directive line. Returns true when
// the line was consumed. The block indent is unknown until the first content
// line arrives, so codeIndent starts negative.
func (c *rstConverter) codeDirective(line string) bool {
	if !rstCodeBlockDirective.MatchString(strings.TrimSpace(line)) {
		return false
	}
	c.inCode = true
	c.codeIndent = -1
	c.out = append(c.out, "```")
	return true
}

// shortCodeBlock handles the :: shorthand that opens an indented literal
// block. Returns true when a code block was opened.
func (c *rstConverter) shortCodeBlock(i int, lines []string) bool {
	if c.inCode {
		return false
	}
	line := lines[i]
	if !rstCodeBlockShort.MatchString(strings.TrimSpace(line)) || i+1 >= len(lines) {
		return false
	}
	for j := i + 1; j < len(lines); j++ {
		next := lines[j]
		if strings.TrimSpace(next) == "" {
			continue
		}
		if len(next) > 0 && (next[0] == ' ' || next[0] == '\t') {
			stripped := strings.TrimSuffix(strings.TrimSpace(line), ":")
			stripped = strings.TrimSuffix(stripped, ":")
			c.out = append(c.out, stripped, "```")
			c.inCode = true
			c.codeIndent = indentWidth(next)
		}
		break
	}
	return c.inCode
}

// codeLine handles a line inside an active code block, closing the block when
// indentation drops below the block indent.
func (c *rstConverter) codeLine(line string) {
	if strings.TrimSpace(line) != "" {
		if c.codeIndent < 0 {
			c.codeIndent = indentWidth(line)
		}
		if indentWidth(line) < c.codeIndent {
			c.out = append(c.out, "```")
			c.inCode = false
		} else if len(line) >= c.codeIndent {
			line = line[c.codeIndent:]
		}
	}
	c.out = append(c.out, line)
}

// sectionTitle checks whether lines[i] is a section title followed by an
// underline. Returns the number of lines to skip, 0 when not a title.
func (c *rstConverter) sectionTitle(i int, lines []string) int {
	if i+1 >= len(lines) {
		return 0
	}
	underline := strings.TrimSpace(lines[i+1])
	if !rstSectionUnderline.MatchString(underline) {
		return 0
	}
	title := strings.TrimSpace(lines[i])
	if len(underline) < len(title) || title == "" {
		return 0
	}

	char := rune(underline[0])
	level, seen := c.levelByRune[char]
	if !seen {
		level = c.nextLevel
		c.levelByRune[char] = level
		if c.nextLevel < 6 {
			c.nextLevel++
		}
	}

	c.out = append(c.out, strings.Repeat("#", level)+" "+title)
	return 1
}

// indentWidth counts leading spaces and tabs.
func indentWidth(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}
