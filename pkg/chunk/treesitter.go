package chunk

import (
	"path/filepath"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// chunkTreeSitter emits one chunk per node whose kind the language
// registers. Nested units (methods inside classes) get their own chunks
// as well. It returns nil if the file cannot be parsed.
func (c *Chunker) chunkTreeSitter(path, content string, lang *Language) []Chunk {
	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(tree_sitter.NewLanguage(lang.Grammar())); err != nil {
		return nil
	}

	src := []byte(content)
	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil
	}
	defer tree.Close()

	units := make(map[string]NodeType, len(lang.Nodes))
	for _, n := range lang.Nodes {
		units[n.Kind] = n
	}

	base := filepath.Base(path)
	var chunks []Chunk
	var walk func(node *tree_sitter.Node)
	walk = func(node *tree_sitter.Node) {
		if unit, ok := units[node.Kind()]; ok {
			text := string(src[node.StartByte():node.EndByte()])
			if EstimateTokens(text) >= c.cfg.MinTokens {
				chunks = append(chunks, Chunk{
					Path:        path,
					StartLine:   int(node.StartPosition().Row) + 1,
					EndLine:     int(node.EndPosition().Row) + 2,
					Content:     text,
					Description: describe(lang.Name, unit.Label, nodeName(node, src, unit.NameField), base),
				})
			}
		}
		for i := uint(0); i < node.NamedChildCount(); i++ {
			if child := node.NamedChild(i); child != nil {
				walk(child)
			}
		}
	}
	walk(tree.RootNode())

	return chunks
}

func nodeName(node *tree_sitter.Node, src []byte, field string) string {
	if field == "" {
		return ""
	}
	n := node.ChildByFieldName(field)
	if n == nil {
		return ""
	}
	name := string(src[n.StartByte():n.EndByte()])
	// C declarators carry the parameter list.
	if i := strings.IndexByte(name, '('); i > 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

func describe(lang, label, name, file string) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(lang[:1]) + lang[1:] + " " + label)
	if name != "" {
		b.WriteString(" " + name)
	}
	b.WriteString(" in " + file)
	return b.String()
}
