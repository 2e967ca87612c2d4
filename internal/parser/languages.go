package parser

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/codeatlas/codeatlas/internal/lang"
)

// grammarFor returns the raw grammar pointer for a language tag. The tsx
// flavour is selected by filename when loading TypeScript. Languages in
// the classifier set without Go bindings (swift, kotlin) return nil; their
// files fail parsing with ErrGrammarUnavailable and are reported as failed
// files.
func grammarFor(langTag string, tsx bool) *tree_sitter.Language {
	switch langTag {
	case lang.TypeScript:
		if tsx {
			return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
		}
		return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	case lang.JavaScript:
		return tree_sitter.NewLanguage(tree_sitter_javascript.Language())
	case lang.Python:
		return tree_sitter.NewLanguage(tree_sitter_python.Language())
	case lang.Java:
		return tree_sitter.NewLanguage(tree_sitter_java.Language())
	case lang.C, lang.Cpp:
		// The C++ grammar parses both C and C++ translation units.
		return tree_sitter.NewLanguage(tree_sitter_cpp.Language())
	case lang.CSharp:
		return tree_sitter.NewLanguage(tree_sitter_csharp.Language())
	case lang.Go:
		return tree_sitter.NewLanguage(tree_sitter_go.Language())
	case lang.Rust:
		return tree_sitter.NewLanguage(tree_sitter_rust.Language())
	case lang.PHP:
		return tree_sitter.NewLanguage(tree_sitter_php.LanguagePHP())
	default:
		return nil
	}
}

// definitionQueries capture symbol definitions per language. Each pattern
// pairs a @name capture with a @definition.<kind> capture on the
// enclosing declaration; the extractor maps the kind suffix to a node
// label. Imports, call sites and heritage are collected by tree walk, not
// by query.
var definitionQueries = map[string]string{
	lang.TypeScript: `
        (function_declaration name: (identifier) @name) @definition.function
        (generator_function_declaration name: (identifier) @name) @definition.function
        (method_definition name: (property_identifier) @name) @definition.method
        (class_declaration name: (type_identifier) @name) @definition.class
        (abstract_class_declaration name: (type_identifier) @name) @definition.class
        (interface_declaration name: (type_identifier) @name) @definition.interface
        (type_alias_declaration name: (type_identifier) @name) @definition.type
        (enum_declaration name: (identifier) @name) @definition.enum
        (variable_declarator
            name: (identifier) @name
            value: [(arrow_function) (function_expression)]) @definition.function
    `,
	lang.JavaScript: `
        (function_declaration name: (identifier) @name) @definition.function
        (generator_function_declaration name: (identifier) @name) @definition.function
        (method_definition name: (property_identifier) @name) @definition.method
        (class_declaration name: (identifier) @name) @definition.class
        (variable_declarator
            name: (identifier) @name
            value: [(arrow_function) (function_expression) (generator_function)]) @definition.function
    `,
	lang.Python: `
        (function_definition name: (identifier) @name) @definition.function
        (class_definition name: (identifier) @name) @definition.class
    `,
	lang.Java: `
        (class_declaration name: (identifier) @name) @definition.class
        (record_declaration name: (identifier) @name) @definition.record
        (interface_declaration name: (identifier) @name) @definition.interface
        (enum_declaration name: (identifier) @name) @definition.enum
        (method_declaration name: (identifier) @name) @definition.method
        (constructor_declaration name: (identifier) @name) @definition.constructor
        (annotation_type_declaration name: (identifier) @name) @definition.annotation
    `,
	lang.Cpp: `
        (function_definition declarator: (function_declarator declarator: (identifier) @name)) @definition.function
        (function_definition declarator: (function_declarator declarator: (qualified_identifier) @name)) @definition.function
        (class_specifier name: (type_identifier) @name) @definition.class
        (struct_specifier name: (type_identifier) @name) @definition.struct
        (enum_specifier name: (type_identifier) @name) @definition.enum
        (union_specifier name: (type_identifier) @name) @definition.union
        (namespace_definition name: (namespace_identifier) @name) @definition.namespace
        (type_definition declarator: (type_identifier) @name) @definition.typedef
        (preproc_def name: (identifier) @name) @definition.macro
        (preproc_function_def name: (identifier) @name) @definition.macro
    `,
	lang.CSharp: `
        (class_declaration name: (identifier) @name) @definition.class
        (interface_declaration name: (identifier) @name) @definition.interface
        (struct_declaration name: (identifier) @name) @definition.struct
        (record_declaration name: (identifier) @name) @definition.record
        (enum_declaration name: (identifier) @name) @definition.enum
        (method_declaration name: (identifier) @name) @definition.method
        (constructor_declaration name: (identifier) @name) @definition.constructor
        (property_declaration name: (identifier) @name) @definition.property
        (delegate_declaration name: (identifier) @name) @definition.delegate
        (namespace_declaration name: (qualified_name) @name) @definition.namespace
        (namespace_declaration name: (identifier) @name) @definition.namespace
    `,
	lang.Go: `
        (function_declaration name: (identifier) @name) @definition.function
        (method_declaration name: (field_identifier) @name) @definition.method
        (type_declaration (type_spec name: (type_identifier) @name)) @definition.type
        (const_declaration (const_spec name: (identifier) @name)) @definition.const
    `,
	lang.Rust: `
        (function_item name: (identifier) @name) @definition.function
        (struct_item name: (type_identifier) @name) @definition.struct
        (enum_item name: (type_identifier) @name) @definition.enum
        (trait_item name: (type_identifier) @name) @definition.trait
        (type_item name: (type_identifier) @name) @definition.type
        (mod_item name: (identifier) @name) @definition.module
        (macro_definition name: (identifier) @name) @definition.macro
        (const_item name: (identifier) @name) @definition.const
        (static_item name: (identifier) @name) @definition.static
    `,
	lang.PHP: `
        (class_declaration name: (name) @name) @definition.class
        (interface_declaration name: (name) @name) @definition.interface
        (trait_declaration name: (name) @name) @definition.trait
        (enum_declaration name: (name) @name) @definition.enum
        (function_definition name: (name) @name) @definition.function
        (method_declaration name: (name) @name) @definition.method
        (namespace_definition name: (namespace_name) @name) @definition.namespace
    `,
}

func init() {
	// C files are parsed with the C++ grammar; they share its query.
	definitionQueries[lang.C] = definitionQueries[lang.Cpp]
}
