package parser

import (
	"path/filepath"
	"strings"
)

// adocConverter tracks delimited-block state while converting AsciiDoc
// line by line.
type adocConverter struct {
	out    []string
	fence  string // active delimiter, "" when outside any block
	inCode bool
}

// convertToMarkdownStyle converts AsciiDoc to markdown-style format so the
// shared sectioner can process it.
func (p *ASCIIDocParser) convertToMarkdownStyle(content string) string {
	c := &adocConverter{out: make([]string, 0, strings.Count(content, "\n")+1)}

	for _, line := range strings.Split(content, "\n") {
		c.line(line)
	}

	if c.inCode {
		c.out = append(c.out, "```")
	}

	return strings.Join(c.out, "\n")
}

func (c *adocConverter) line(line string) {
	trimmed := strings.TrimSpace(line)

	if c.delimiter(trimmed) {
		return
	}

	// Inside a delimited block content passes through untouched
	if c.fence != "" || c.inCode {
		c.out = append(c.out, line)
		return
	}

	c.element(trimmed, line)
}

// delimiter handles block delimiter lines. Returns true when the line was
// consumed as a delimiter.
func (c *adocConverter) delimiter(trimmed string) bool {
	switch {
	case adocListingBlock.MatchString(trimmed):
		c.toggleCode("----")
		return true
	case adocLiteralBlock.MatchString(trimmed):
		c.toggleCode("....")
		return true
	case adocPassthroughBlock.MatchString(trimmed):
		// Passthrough content survives, the delimiters do not
		if c.fence == "++++" {
			c.fence = ""
		} else if c.fence == "" && !c.inCode {
			c.fence = "++++"
		}
		return true
	case adocSidebarBlock.MatchString(trimmed), adocExampleBlock.MatchString(trimmed):
		// Sidebar and example delimiters are dropped entirely
		return true
	}
	return false
}

// toggleCode opens or closes a fenced code block for the given delimiter.
func (c *adocConverter) toggleCode(delim string) {
	switch {
	case c.inCode && c.fence == "source":
		// Opening delimiter of a [source] block; adopt it so the
		// matching closer ends the block
		c.fence = delim
	case c.inCode && c.fence == delim:
		c.out = append(c.out, "```")
		c.inCode = false
		c.fence = ""
	case !c.inCode && c.fence == "":
		c.out = append(c.out, "```")
		c.inCode = true
		c.fence = delim
	}
}

// element converts a single non-delimiter line.
func (c *adocConverter) element(trimmed, line string) {
	if match := adocSourceBlock.FindStringSubmatch(trimmed); match != nil {
		if match[1] != "" {
			c.out = append(c.out, "```"+match[1])
		} else {
			c.out = append(c.out, "```")
		}
		c.inCode = true
		c.fence = "source"
		return
	}
	if match := adocSectionTitle.FindStringSubmatch(trimmed); match != nil {
		c.out = append(c.out, strings.Repeat("#", len(match[1]))+" "+match[2])
		return
	}
	if match := adocAdmonition.FindStringSubmatch(trimmed); match != nil {
		c.out = append(c.out, "**"+match[1]+":** "+match[2])
		return
	}
	if match := adocBlockMacro.FindStringSubmatch(trimmed); match != nil {
		c.macro(match[1], match[2], match[3])
		return
	}
	c.out = append(c.out, line)
}

// macro converts an AsciiDoc block macro to markdown-style.
func (c *adocConverter) macro(macroType, target, attrs string) {
	switch macroType {
	case "image":
		alt := attrs
		if alt == "" {
			alt = filepath.Base(target)
		}
		c.out = append(c.out, "!["+alt+"]("+target+")")
	case "include":
		c.out = append(c.out, "_[Include: "+target+"]_")
	default:
		c.out = append(c.out, "_["+macroType+": "+target+"]_")
	}
}
