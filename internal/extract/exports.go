package extract

import (
	"strings"
	"unicode"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas/codeatlas/internal/lang"
)

// isExported applies the per-language visibility rules to a definition
// node. node is the declaration the query captured.
func isExported(langTag string, node *tree_sitter.Node, content []byte, name string) bool {
	switch langTag {
	case lang.TypeScript, lang.JavaScript:
		return isJSExported(node, content)
	case lang.Python:
		return !strings.HasPrefix(name, "_")
	case lang.Go:
		return isGoExported(name)
	case lang.Rust:
		return hasVisibilityModifier(node)
	case lang.CSharp:
		return hasModifierText(node, content, "public")
	case lang.PHP:
		return isPHPExported(node, content)
	case lang.Swift:
		return isSwiftExported(node, content)
	case lang.Kotlin:
		return !hasModifierText(node, content, "private") && !hasModifierText(node, content, "internal")
	case lang.C, lang.Cpp:
		return false
	default:
		return false
	}
}

func isJSExported(node *tree_sitter.Node, content []byte) bool {
	for p := node.Parent(); p != nil; p = p.Parent() {
		if p.Kind() == "export_statement" {
			return true
		}
	}
	text := node.Utf8Text(content)
	return strings.HasPrefix(text, "export ")
}

func isGoExported(name string) bool {
	if name == "" {
		return false
	}
	return unicode.IsUpper([]rune(name)[0])
}

// hasVisibilityModifier reports a Rust pub marker on the node or an
// ancestor item.
func hasVisibilityModifier(node *tree_sitter.Node) bool {
	for n := node; n != nil; n = n.Parent() {
		for i := uint(0); i < n.ChildCount(); i++ {
			if c := n.Child(i); c != nil && c.Kind() == "visibility_modifier" {
				return true
			}
		}
	}
	return false
}

// hasModifierText reports a modifier child with the given text.
func hasModifierText(node *tree_sitter.Node, content []byte, want string) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		c := node.Child(i)
		if c == nil {
			continue
		}
		kind := c.Kind()
		if kind == "modifier" || kind == "modifiers" {
			if strings.Contains(c.Utf8Text(content), want) {
				return true
			}
		}
	}
	return false
}

// isPHPExported: top-level functions and class declarations are exported;
// members are exported iff an explicit public visibility_modifier is
// present.
func isPHPExported(node *tree_sitter.Node, content []byte) bool {
	switch node.Kind() {
	case "function_definition", "class_declaration", "interface_declaration",
		"trait_declaration", "enum_declaration", "namespace_definition":
		return true
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		c := node.Child(i)
		if c != nil && c.Kind() == "visibility_modifier" {
			return c.Utf8Text(content) == "public"
		}
	}
	return false
}

func isSwiftExported(node *tree_sitter.Node, content []byte) bool {
	for n := node; n != nil; n = n.Parent() {
		for i := uint(0); i < n.ChildCount(); i++ {
			c := n.Child(i)
			if c == nil || c.Kind() != "modifiers" {
				continue
			}
			text := c.Utf8Text(content)
			if strings.Contains(text, "public") || strings.Contains(text, "open") {
				return true
			}
		}
	}
	return false
}
