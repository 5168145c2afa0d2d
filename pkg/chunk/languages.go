package chunk

import (
	"path/filepath"
	"strings"
	"unsafe"

	tree_sitter_c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// Language describes how tree-sitter chunks one language.
type Language struct {
	Name       string
	Extensions []string
	Grammar    func() unsafe.Pointer
	Nodes      []NodeType
}

// NodeType is a syntax node kind emitted as its own chunk.
type NodeType struct {
	Kind      string // tree-sitter node kind, e.g. "function_definition"
	Label     string // used in descriptions, e.g. "function"
	NameField string // field holding the identifier, if any
}

var byExtension = map[string]*Language{}

// Register adds a language, replacing earlier ones with the same extensions.
func Register(lang *Language) {
	for _, ext := range lang.Extensions {
		byExtension[ext] = lang
	}
}

// Lookup returns the language for path's extension, or nil.
func Lookup(path string) *Language {
	return byExtension[strings.ToLower(filepath.Ext(path))]
}

func init() {
	cNodes := []NodeType{
		{"function_definition", "function", "declarator"},
		{"struct_specifier", "struct", "name"},
		{"enum_specifier", "enum", "name"},
	}
	jsNodes := []NodeType{
		{"function_declaration", "function", "name"},
		{"function_expression", "function", "name"},
		{"arrow_function", "arrow function", ""},
		{"class_declaration", "class", "name"},
		{"method_definition", "method", "name"},
	}

	for _, lang := range []*Language{
		{
			Name:       "python",
			Extensions: []string{".py", ".pyi"},
			Grammar:    func() unsafe.Pointer { return tree_sitter_python.Language() },
			Nodes: []NodeType{
				{"function_definition", "function", "name"},
				{"class_definition", "class", "name"},
			},
		},
		{
			Name:       "javascript",
			Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
			Grammar:    func() unsafe.Pointer { return tree_sitter_javascript.Language() },
			Nodes:      jsNodes,
		},
		{
			Name:       "typescript",
			Extensions: []string{".ts", ".tsx", ".mts", ".cts"},
			Grammar:    func() unsafe.Pointer { return tree_sitter_typescript.LanguageTypescript() },
			Nodes: append(append([]NodeType{}, jsNodes...),
				NodeType{"interface_declaration", "interface", "name"},
				NodeType{"type_alias_declaration", "type", "name"},
			),
		},
		{
			Name:       "java",
			Extensions: []string{".java"},
			Grammar:    func() unsafe.Pointer { return tree_sitter_java.Language() },
			Nodes: []NodeType{
				{"method_declaration", "method", "name"},
				{"constructor_declaration", "constructor", "name"},
				{"class_declaration", "class", "name"},
				{"interface_declaration", "interface", "name"},
				{"enum_declaration", "enum", "name"},
			},
		},
		{
			Name:       "c",
			Extensions: []string{".c", ".h"},
			Grammar:    func() unsafe.Pointer { return tree_sitter_c.Language() },
			Nodes:      cNodes,
		},
		{
			Name:       "cpp",
			Extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".hh", ".hxx"},
			Grammar:    func() unsafe.Pointer { return tree_sitter_cpp.Language() },
			Nodes: append(append([]NodeType{}, cNodes...),
				NodeType{"class_specifier", "class", "name"},
				NodeType{"namespace_definition", "namespace", "name"},
			),
		},
		{
			Name:       "rust",
			Extensions: []string{".rs"},
			Grammar:    func() unsafe.Pointer { return tree_sitter_rust.Language() },
			Nodes: []NodeType{
				{"function_item", "function", "name"},
				{"impl_item", "impl", "type"},
				{"struct_item", "struct", "name"},
				{"enum_item", "enum", "name"},
				{"trait_item", "trait", "name"},
			},
		},
	} {
		Register(lang)
	}
}
