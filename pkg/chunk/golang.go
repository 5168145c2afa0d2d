package chunk

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
)

// chunkGo emits one chunk per function and type declaration, doc comment
// included. It returns nil when the file does not parse.
func (c *Chunker) chunkGo(path, content string) []Chunk {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments)
	if err != nil {
		return nil
	}

	base := filepath.Base(path)
	pkg := file.Name.Name

	var chunks []Chunk
	add := func(doc *ast.CommentGroup, from, to token.Pos, desc string) {
		if doc != nil {
			from = doc.Pos()
		}
		start, end := fset.Position(from), fset.Position(to)
		text := content[start.Offset:end.Offset]
		if EstimateTokens(text) < c.cfg.MinTokens {
			return
		}
		chunks = append(chunks, Chunk{
			Path:        path,
			StartLine:   start.Line,
			EndLine:     end.Line + 1,
			Content:     text,
			Description: desc,
		})
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			add(d.Doc, d.Pos(), d.End(), funcDescription(base, pkg, d))
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts := spec.(*ast.TypeSpec)
				doc := ts.Doc
				if doc == nil && len(d.Specs) == 1 {
					doc = d.Doc
				}
				add(doc, ts.Pos(), ts.End(), typeDescription(base, pkg, ts))
			}
		}
	}
	return chunks
}

func funcDescription(file, pkg string, fn *ast.FuncDecl) string {
	var b strings.Builder
	b.WriteString("Go function ")
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		b.WriteString("(" + receiverType(fn.Recv.List[0].Type) + ").")
	}
	b.WriteString(fn.Name.Name + " in package " + pkg + " (" + file + ")")
	if doc := strings.TrimSpace(fn.Doc.Text()); doc != "" && len(doc) < 200 {
		b.WriteString(". " + doc)
	}
	return b.String()
}

func typeDescription(file, pkg string, ts *ast.TypeSpec) string {
	kind := "type"
	switch ts.Type.(type) {
	case *ast.StructType:
		kind = "struct"
	case *ast.InterfaceType:
		kind = "interface"
	}
	return "Go " + kind + " " + ts.Name.Name + " in package " + pkg + " (" + file + ")"
}

func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + receiverType(t.X)
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	default:
		return "T"
	}
}
