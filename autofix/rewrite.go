package autofix

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// rewriteSelector replaces every Go string literal in src whose value
// contains oldSel with the same value using newSel, and returns the patched
// source plus the number of literals touched. Literals are located through
// the parse tree, so occurrences in comments stay untouched.
func rewriteSelector(ctx context.Context, src []byte, oldSel, newSel string) ([]byte, int, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, 0, fmt.Errorf("parse artifact: %w", err)
	}
	defer tree.Close()

	type edit struct {
		start, end uint32
		text       []byte
	}
	var edits []edit

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "interpreted_string_literal" {
			raw := string(src[n.StartByte():n.EndByte()])
			value, uerr := strconv.Unquote(raw)
			if uerr == nil && strings.Contains(value, oldSel) {
				replaced := strings.ReplaceAll(value, oldSel, newSel)
				edits = append(edits, edit{
					start: n.StartByte(),
					end:   n.EndByte(),
					text:  []byte(strconv.Quote(replaced)),
				})
			}
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(tree.RootNode())

	if len(edits) == 0 {
		return src, 0, nil
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var buf bytes.Buffer
	last := uint32(0)
	for _, e := range edits {
		buf.Write(src[last:e.start])
		buf.Write(e.text)
		last = e.end
	}
	buf.Write(src[last:])
	return buf.Bytes(), len(edits), nil
}
