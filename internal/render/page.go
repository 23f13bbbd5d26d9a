// Package render turns module fragments into terminal pages and routes
// the actions those pages expose.
package render

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// BlockKind classifies a line of page text.
type BlockKind int

const (
	BlockText BlockKind = iota
	BlockHeading
	BlockItem
	BlockRow
)

// Block is one displayable unit of a page.
type Block struct {
	Kind  BlockKind
	Level int // Heading level, 1-6.
	Text  string
}

// TriggerKind says what selecting a trigger does.
type TriggerKind int

const (
	TriggerAction   TriggerKind = iota // Runs a registered handler.
	TriggerNavigate                    // Shows another module.
)

// Trigger is a selectable element extracted from a fragment.
type Trigger struct {
	Kind   TriggerKind
	Action string // data-action value.
	Target string // data-content value.
	Label  string
	// Data holds every data-* attribute with the prefix removed,
	// e.g. "service-id".
	Data map[string]string
}

// Name returns the action or the navigation target.
func (t Trigger) Name() string {
	if t.Kind == TriggerNavigate {
		return t.Target
	}
	return t.Action
}

// Page is a parsed fragment.
type Page struct {
	Blocks   []Block
	Triggers []Trigger
}

// Text renders the blocks as plain lines.
func (p Page) Text() string {
	var b strings.Builder
	for i, blk := range p.Blocks {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch blk.Kind {
		case BlockHeading:
			b.WriteString(strings.ToUpper(blk.Text))
		case BlockItem:
			b.WriteString("• " + blk.Text)
		default:
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}

var blockTags = map[atom.Atom]BlockKind{
	atom.H1: BlockHeading, atom.H2: BlockHeading, atom.H3: BlockHeading,
	atom.H4: BlockHeading, atom.H5: BlockHeading, atom.H6: BlockHeading,
	atom.P: BlockText, atom.Div: BlockText, atom.Section: BlockText,
	atom.Article: BlockText, atom.Header: BlockText, atom.Footer: BlockText,
	atom.Pre: BlockText, atom.Blockquote: BlockText, atom.Label: BlockText,
	atom.Dt: BlockText, atom.Dd: BlockText, atom.Caption: BlockText,
	atom.Form: BlockText, atom.Ul: BlockText, atom.Ol: BlockText,
	atom.Table: BlockText, atom.Tbody: BlockText, atom.Thead: BlockText,
	atom.Li: BlockItem, atom.Tr: BlockRow,
}

var headingLevel = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

// Parse converts an HTML fragment into a Page.
func Parse(fragment string) (Page, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return Page{}, fmt.Errorf("parsing fragment: %w", err)
	}
	root := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	var p Page
	p.walk(root)
	return p, nil
}

func (p *Page) walk(n *html.Node) {
	if n.Type != html.ElementNode {
		if n.Type == html.TextNode {
			if t := collapse(n.Data); t != "" {
				p.Blocks = append(p.Blocks, Block{Kind: BlockText, Text: t})
			}
		}
		return
	}
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Template, atom.Noscript:
		return
	}

	if t, ok := triggerOf(n); ok {
		p.Triggers = append(p.Triggers, t)
		return
	}

	kind, isBlock := blockTags[n.DataAtom]
	if isBlock && !hasBlockDescendant(n) {
		p.addBlock(n, kind)
		// Triggers nested in a leaf block still count.
		p.collectTriggers(n)
		return
	}

	// Inline runs between block children become their own text block.
	var run strings.Builder
	flush := func() {
		if t := collapse(run.String()); t != "" {
			p.Blocks = append(p.Blocks, Block{Kind: BlockText, Text: t})
		}
		run.Reset()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (isBlockNode(c) || isTriggerNode(c)) {
			flush()
			p.walk(c)
			continue
		}
		run.WriteString(" " + blockText(c) + " ")
		p.collectTriggers(c)
	}
	flush()
}

func (p *Page) addBlock(n *html.Node, kind BlockKind) {
	var text string
	if kind == BlockRow {
		var cells []string
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
				if cell := collapse(blockText(c)); cell != "" {
					cells = append(cells, cell)
				}
			}
		}
		text = strings.Join(cells, " | ")
	} else {
		text = collapse(blockText(n))
	}
	if text == "" {
		return
	}
	p.Blocks = append(p.Blocks, Block{Kind: kind, Level: headingLevel[n.DataAtom], Text: text})
}

func (p *Page) collectTriggers(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t, ok := triggerOf(c); ok {
			p.Triggers = append(p.Triggers, t)
			continue
		}
		p.collectTriggers(c)
	}
}

func isBlockNode(n *html.Node) bool {
	_, ok := blockTags[n.DataAtom]
	return ok
}

func isTriggerNode(n *html.Node) bool {
	_, ok := triggerOf(n)
	return ok
}

func hasBlockDescendant(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if isBlockNode(c) || hasBlockDescendant(c) {
			return true
		}
	}
	return false
}

// triggerOf reports whether n carries data-action or data-content.
func triggerOf(n *html.Node) (Trigger, bool) {
	if n.Type != html.ElementNode {
		return Trigger{}, false
	}
	data := make(map[string]string)
	for _, a := range n.Attr {
		if strings.HasPrefix(a.Key, "data-") {
			data[strings.TrimPrefix(a.Key, "data-")] = a.Val
		}
	}
	action, content := data["action"], data["content"]
	if action == "" && content == "" {
		return Trigger{}, false
	}

	t := Trigger{Data: data, Label: collapse(textOf(n))}
	if action != "" {
		t.Kind, t.Action = TriggerAction, action
	} else {
		t.Kind, t.Target = TriggerNavigate, content
	}
	if t.Label == "" {
		t.Label = attr(n, "title")
	}
	if t.Label == "" {
		t.Label = attr(n, "aria-label")
	}
	if t.Label == "" {
		t.Label = t.Name()
	}
	return t, true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textOf returns the text under n, including trigger labels.
func textOf(n *html.Node) string {
	return gatherText(n, false)
}

// blockText returns the text under n without nested trigger labels,
// which are listed separately.
func blockText(n *html.Node) string {
	return gatherText(n, true)
}

func gatherText(n *html.Node, skipTriggers bool) string {
	switch n.Type {
	case html.TextNode:
		return n.Data
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style:
			return ""
		case atom.Br:
			return " "
		}
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if skipTriggers && isTriggerNode(c) {
			continue
		}
		b.WriteString(gatherText(c, skipTriggers))
		b.WriteByte(' ')
	}
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
