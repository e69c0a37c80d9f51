package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"golang.org/x/net/html"

	"github.com/spf13/afero"

	"github.com/spachava753/sitebuild/internal/fileset"
	"github.com/spachava753/sitebuild/internal/models"
)

// Selectors is the set of tags, classes and ids used by a set of documents.
type Selectors struct {
	Tags    map[string]bool
	Classes map[string]bool
	IDs     map[string]bool
}

// NewSelectors returns an empty set.
func NewSelectors() *Selectors {
	return &Selectors{Tags: map[string]bool{}, Classes: map[string]bool{}, IDs: map[string]bool{}}
}

// Harvest adds every tag name, class and id found in an HTML document.
func (s *Selectors) Harvest(doc []byte) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			s.Tags[strings.ToLower(string(name))] = true
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				switch string(key) {
				case "class":
					for _, c := range strings.Fields(string(val)) {
						s.Classes[c] = true
					}
				case "id":
					if id := strings.TrimSpace(string(val)); id != "" {
						s.IDs[id] = true
					}
				}
			}
		}
	}
}

// Used reports whether a single selector (no commas) can match the harvested
// documents: every tag, class and id it names must appear somewhere.
// Pseudo-classes and attribute filters are ignored.
func (s *Selectors) Used(selector string) bool {
	for _, ref := range selectorRefs(selector) {
		switch ref[0] {
		case '.':
			if !s.Classes[ref[1:]] {
				return false
			}
		case '#':
			if !s.IDs[ref[1:]] {
				return false
			}
		default:
			if !s.Tags[strings.ToLower(ref)] {
				return false
			}
		}
	}
	return true
}

// selectorRefs splits a selector into the tag names (bare), classes ('.')
// and ids ('#') it references.
func selectorRefs(sel string) []string {
	var refs []string
	compoundStart := true
	for i := 0; i < len(sel); {
		c := sel[i]
		switch {
		case c == '.' || c == '#':
			j := scanIdent(sel, i+1)
			if j > i+1 {
				refs = append(refs, string(c)+unescape(sel[i+1:j]))
			}
			i = j
			compoundStart = false
		case c == '[':
			i = skipBalanced(sel, i, '[', ']')
			compoundStart = false
		case c == ':':
			j := i + 1
			if j < len(sel) && sel[j] == ':' {
				j++
			}
			j = scanIdent(sel, j)
			if j < len(sel) && sel[j] == '(' {
				j = skipBalanced(sel, j, '(', ')')
			}
			i = j
			compoundStart = false
		case c == ' ' || c == '>' || c == '+' || c == '~' || c == '\t' || c == '\n':
			i++
			compoundStart = true
		case c == '*' || c == '|':
			i++
			compoundStart = false
		case compoundStart && isIdentChar(c):
			j := scanIdent(sel, i)
			refs = append(refs, sel[i:j])
			i = j
			compoundStart = false
		default:
			i++
		}
	}
	return refs
}

func isIdentChar(c byte) bool {
	return c == '-' || c == '_' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func scanIdent(s string, i int) int {
	for i < len(s) {
		if s[i] == '\\' && i+1 < len(s) {
			i += 2
			continue
		}
		if !isIdentChar(s[i]) {
			break
		}
		i++
	}
	return i
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func skipBalanced(s string, i int, open, close byte) int {
	depth := 0
	for ; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return i
}

// keepBlocks are at-rules whose contents are never purged.
var keepBlocks = map[string]bool{
	"@font-face":         true,
	"@keyframes":         true,
	"@-webkit-keyframes": true,
	"@-moz-keyframes":    true,
	"@-o-keyframes":      true,
	"@page":              true,
	"@counter-style":     true,
	"@property":          true,
}

// cssNode is a ruleset, an at-rule (with or without a block) or a
// declaration.
type cssNode struct {
	selectors []string
	atRule    string
	prelude   string
	decl      string
	block     bool
	children  []*cssNode
}

// Purge removes rules whose selectors match nothing in used. Selectors listed
// in keep always survive. Comments are dropped.
func Purge(stylesheet []byte, used *Selectors, keep []string) ([]byte, error) {
	root, err := parseCSS(stylesheet)
	if err != nil {
		return nil, err
	}

	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[strings.TrimSpace(k)] = true
	}

	var buf bytes.Buffer
	for _, n := range root.children {
		writeNode(&buf, prune(n, used, kept))
	}
	return buf.Bytes(), nil
}

func parseCSS(data []byte) (*cssNode, error) {
	p := css.NewParser(parse.NewInput(bytes.NewReader(data)), false)
	root := &cssNode{block: true}
	stack := []*cssNode{root}
	top := func() *cssNode { return stack[len(stack)-1] }

	var pending []string
	for {
		gt, _, data := p.Next()
		switch gt {
		case css.ErrorGrammar:
			if errors.Is(p.Err(), io.EOF) {
				if len(stack) > 1 {
					return nil, fmt.Errorf("unexpected end of stylesheet inside block")
				}
				return root, nil
			}
			return nil, p.Err()
		case css.QualifiedRuleGrammar:
			pending = append(pending, tokensString(p.Values()))
		case css.BeginRulesetGrammar:
			n := &cssNode{selectors: append(pending, tokensString(p.Values())), block: true}
			pending = nil
			top().children = append(top().children, n)
			stack = append(stack, n)
		case css.EndRulesetGrammar, css.EndAtRuleGrammar:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case css.BeginAtRuleGrammar:
			n := &cssNode{atRule: strings.ToLower(string(data)), prelude: tokensString(p.Values()), block: true}
			top().children = append(top().children, n)
			stack = append(stack, n)
		case css.AtRuleGrammar:
			top().children = append(top().children, &cssNode{atRule: strings.ToLower(string(data)), prelude: tokensString(p.Values())})
		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			top().children = append(top().children, &cssNode{decl: string(data) + ":" + tokensString(p.Values())})
		}
	}
}

func tokensString(tokens []css.Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.Write(t.Data)
	}
	return strings.TrimSpace(sb.String())
}

// prune returns n without unused selectors, or nil if nothing is left.
func prune(n *cssNode, used *Selectors, kept map[string]bool) *cssNode {
	switch {
	case n.decl != "":
		return n
	case n.atRule != "":
		if !n.block || keepBlocks[n.atRule] {
			return n
		}
		out := *n
		out.children = nil
		for _, c := range n.children {
			if pc := prune(c, used, kept); pc != nil {
				out.children = append(out.children, pc)
			}
		}
		if len(out.children) == 0 {
			return nil
		}
		return &out
	default:
		var sels []string
		for _, s := range n.selectors {
			if kept[s] || used.Used(s) {
				sels = append(sels, s)
			}
		}
		if len(sels) == 0 {
			return nil
		}
		out := *n
		out.selectors = sels
		return &out
	}
}

func writeNode(buf *bytes.Buffer, n *cssNode) {
	if n == nil {
		return
	}
	switch {
	case n.decl != "":
		buf.WriteString(n.decl)
		buf.WriteByte(';')
		return
	case n.atRule != "":
		buf.WriteString(n.atRule)
		if n.prelude != "" {
			buf.WriteByte(' ')
			buf.WriteString(n.prelude)
		}
		if !n.block {
			buf.WriteByte(';')
			return
		}
	default:
		buf.WriteString(strings.Join(n.selectors, ","))
	}
	buf.WriteByte('{')
	for _, c := range n.children {
		writeNode(buf, c)
	}
	buf.WriteByte('}')
}

// purge prunes every stylesheet against the documents matched by step.HTML.
func (st *state) purge(step models.Step) error {
	if len(st.files) == 0 {
		return nil
	}

	docs, err := fileset.Expand(st.task.fsys, step.HTML)
	if err != nil {
		return &models.BuildError{Type: models.ErrConfig, Task: st.task.cat.Name, Message: err.Error(), Err: err}
	}
	used := NewSelectors()
	for _, d := range docs {
		data, err := afero.ReadFile(st.task.opts.Fs, d.Path)
		if err != nil {
			return models.IOError(st.task.cat.Name, d.Path, err)
		}
		used.Harvest(data)
	}

	for _, f := range st.files {
		out, err := Purge(f.Contents, used, step.Keep)
		if err != nil {
			st.contain(f, 0, err)
			continue
		}
		st.logger.Debug("purged stylesheet", "path", f.Path, "before", len(f.Contents), "after", len(out))
		f.Contents = out
		st.resetMap(f)
	}
	return nil
}
