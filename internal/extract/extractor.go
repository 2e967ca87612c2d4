package extract

import (
	"fmt"
	"sort"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeatlas/codeatlas/internal/graph"
	"github.com/codeatlas/codeatlas/internal/lang"
	"github.com/codeatlas/codeatlas/internal/parser"
)

// Task is the worker input: one file's bytes and language tag.
type Task struct {
	FilePath string
	Content  []byte
	Language string
}

// kindBySuffix maps the @definition.<suffix> capture to a node label.
var kindBySuffix = map[string]graph.NodeKind{
	"function":    graph.KindFunction,
	"method":      graph.KindMethod,
	"class":       graph.KindClass,
	"interface":   graph.KindInterface,
	"struct":      graph.KindStruct,
	"enum":        graph.KindEnum,
	"trait":       graph.KindTrait,
	"impl":        graph.KindImpl,
	"macro":       graph.KindMacro,
	"namespace":   graph.KindNamespace,
	"property":    graph.KindProperty,
	"constructor": graph.KindConstructor,
	"module":      graph.KindModule,
	"const":       graph.KindConst,
	"static":      graph.KindStatic,
	"template":    graph.KindTemplate,
	"type":        graph.KindTypeAlias,
	"annotation":  graph.KindAnnotation,
	"record":      graph.KindRecord,
	"delegate":    graph.KindDelegate,
	"union":       graph.KindUnion,
	"typedef":     graph.KindTypedef,
}

// Run extracts one file. The worker creates an isolated parser from the
// shared read-only grammar; it never touches the host's parser or cache.
// Errors are carried in the result, never raised, so a bad file cannot
// abort the run.
func Run(host *parser.Host, task Task) *FileResult {
	result := &FileResult{FilePath: task.FilePath, Language: task.Language}

	g, err := host.Grammar(task.Language, task.FilePath)
	if err != nil {
		result.Failed = true
		result.Err = err
		return result
	}
	query, err := host.Query(task.Language, task.FilePath)
	if err != nil {
		result.Failed = true
		result.Err = err
		return result
	}

	p, err := parser.NewWorkerParser(g)
	if err != nil {
		result.Failed = true
		result.Err = err
		return result
	}
	defer p.Close()

	tree := p.Parse(task.Content, nil)
	if tree == nil {
		result.Failed = true
		return result
	}
	defer tree.Close()

	ex := &extraction{
		task:    task,
		content: task.Content,
		result:  result,
	}
	ex.collectDefinitions(tree, query)
	ex.walk(tree.RootNode())
	return result
}

type extraction struct {
	task    Task
	content []byte
	result  *FileResult
	defs    []Definition // sorted by start byte, used for call attribution
}

// collectDefinitions runs the language's definition query and emits
// definition records in document order.
func (ex *extraction) collectDefinitions(tree *tree_sitter.Tree, query *tree_sitter.Query) {
	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()

	captureNames := query.CaptureNames()
	matches := qc.Matches(query, tree.RootNode(), ex.content)

	// Keyed by declaration start and name: grouped declarations share a
	// node but define distinct names.
	seen := make(map[string]bool)
	var defs []Definition

	for {
		match := matches.Next()
		if match == nil {
			break
		}
		var name string
		var declNode *tree_sitter.Node
		var suffix string
		for _, c := range match.Captures {
			node := c.Node
			captureName := captureNames[c.Index]
			if captureName == "name" {
				name = node.Utf8Text(ex.content)
				continue
			}
			if rest, ok := strings.CutPrefix(captureName, "definition."); ok {
				declNode = &node
				suffix = rest
			}
		}
		if declNode == nil || name == "" {
			continue
		}
		start := declNode.StartByte()
		key := fmt.Sprintf("%d:%s", start, name)
		if seen[key] {
			continue
		}
		seen[key] = true

		kind := kindBySuffix[suffix]
		if kind == "" {
			kind = graph.KindCodeElement
		}
		kind = ex.refineKind(kind, declNode)

		def := Definition{
			Kind:       kind,
			Name:       name,
			FilePath:   ex.task.FilePath,
			StartLine:  int(declNode.StartPosition().Row) + 1,
			EndLine:    int(declNode.EndPosition().Row) + 1,
			IsExported: isExported(ex.task.Language, declNode, ex.content, name),
			Text:       declNode.Utf8Text(ex.content),
			startByte:  start,
			endByte:    declNode.EndByte(),
		}
		defs = append(defs, def)
	}

	// Query match order is per-pattern; sort back into document order so
	// downstream phases see definitions as they appear in the file.
	sort.Slice(defs, func(i, j int) bool { return defs[i].startByte < defs[j].startByte })
	ex.defs = defs
	ex.result.Definitions = defs
}

// refineKind adjusts coarse capture kinds using local tree context.
func (ex *extraction) refineKind(kind graph.NodeKind, node *tree_sitter.Node) graph.NodeKind {
	switch ex.task.Language {
	case lang.Go:
		// type_declaration covers structs, interfaces and aliases alike.
		if kind == graph.KindTypeAlias {
			if spec := firstChildOfKind(node, "type_spec"); spec != nil {
				if t := spec.ChildByFieldName("type"); t != nil {
					switch t.Kind() {
					case "struct_type":
						return graph.KindStruct
					case "interface_type":
						return graph.KindInterface
					}
				}
			}
		}
	case lang.Python:
		if kind == graph.KindFunction && hasAncestorOfKind(node, "class_definition") {
			return graph.KindMethod
		}
	case lang.Rust:
		if kind == graph.KindFunction &&
			(hasAncestorOfKind(node, "impl_item") || hasAncestorOfKind(node, "trait_item")) {
			return graph.KindMethod
		}
	}
	return kind
}

// enclosingDefinitionID finds the innermost definition containing a byte
// offset; "" when the site is at module level.
func (ex *extraction) enclosingDefinitionID(offset uint) string {
	best := -1
	var bestSpan uint
	for i := range ex.defs {
		d := &ex.defs[i]
		if d.startByte <= offset && offset < d.endByte {
			span := d.endByte - d.startByte
			if best == -1 || span < bestSpan {
				best = i
				bestSpan = span
			}
		}
	}
	if best == -1 {
		return ""
	}
	return ex.defs[best].NodeID()
}

// walk traverses the tree once collecting imports, call sites and
// heritage relations.
func (ex *extraction) walk(node *tree_sitter.Node) {
	ex.visit(node)
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child != nil {
			ex.walk(child)
		}
	}
}

func (ex *extraction) visit(node *tree_sitter.Node) {
	kind := node.Kind()
	if spec := ex.importSpecifier(kind, node); spec != "" {
		ex.result.Imports = append(ex.result.Imports, ImportRecord{
			FilePath:  ex.task.FilePath,
			Specifier: spec,
			Line:      int(node.StartPosition().Row) + 1,
		})
		return
	}
	if called := ex.calledName(kind, node); called != "" {
		if sourceID := ex.enclosingDefinitionID(node.StartByte()); sourceID != "" {
			ex.result.Calls = append(ex.result.Calls, CallRecord{
				FilePath:   ex.task.FilePath,
				CalledName: called,
				SourceID:   sourceID,
				Line:       int(node.StartPosition().Row) + 1,
			})
		}
		return
	}
	ex.collectHeritage(kind, node)
}

// importSpecifier returns the raw specifier when node is an import
// statement in the file's language.
func (ex *extraction) importSpecifier(kind string, node *tree_sitter.Node) string {
	switch ex.task.Language {
	case lang.TypeScript, lang.JavaScript:
		if kind == "import_statement" {
			if src := node.ChildByFieldName("source"); src != nil {
				return stripQuotes(src.Utf8Text(ex.content))
			}
		}
	case lang.Python:
		switch kind {
		case "import_from_statement":
			if mod := node.ChildByFieldName("module_name"); mod != nil {
				return mod.Utf8Text(ex.content)
			}
		case "import_statement":
			if name := node.ChildByFieldName("name"); name != nil {
				return name.Utf8Text(ex.content)
			}
			if c := firstChildOfKind(node, "dotted_name"); c != nil {
				return c.Utf8Text(ex.content)
			}
		}
	case lang.Java:
		if kind == "import_declaration" {
			text := node.Utf8Text(ex.content)
			text = strings.TrimPrefix(text, "import")
			text = strings.TrimSuffix(strings.TrimSpace(text), ";")
			return strings.TrimSpace(strings.TrimPrefix(text, "static"))
		}
	case lang.C, lang.Cpp:
		if kind == "preproc_include" {
			if path := node.ChildByFieldName("path"); path != nil {
				return strings.Trim(path.Utf8Text(ex.content), `"<>`)
			}
		}
	case lang.CSharp:
		if kind == "using_directive" {
			if name := firstChildOfAnyKind(node, "qualified_name", "identifier"); name != nil {
				return name.Utf8Text(ex.content)
			}
		}
	case lang.Go:
		if kind == "import_spec" {
			if path := node.ChildByFieldName("path"); path != nil {
				return stripQuotes(path.Utf8Text(ex.content))
			}
		}
	case lang.Rust:
		if kind == "use_declaration" {
			if arg := node.ChildByFieldName("argument"); arg != nil {
				return arg.Utf8Text(ex.content)
			}
		}
	case lang.PHP:
		if kind == "namespace_use_declaration" {
			text := node.Utf8Text(ex.content)
			text = strings.TrimPrefix(text, "use")
			return strings.TrimSuffix(strings.TrimSpace(text), ";")
		}
	}
	return ""
}

// calledName returns the simple name a call site invokes, or "".
func (ex *extraction) calledName(kind string, node *tree_sitter.Node) string {
	switch ex.task.Language {
	case lang.TypeScript, lang.JavaScript:
		if kind == "call_expression" {
			return calleeName(node.ChildByFieldName("function"), ex.content)
		}
	case lang.Python:
		if kind == "call" {
			return calleeName(node.ChildByFieldName("function"), ex.content)
		}
	case lang.Java:
		if kind == "method_invocation" {
			if name := node.ChildByFieldName("name"); name != nil {
				return name.Utf8Text(ex.content)
			}
		}
	case lang.CSharp:
		if kind == "invocation_expression" {
			return calleeName(node.ChildByFieldName("function"), ex.content)
		}
	case lang.Go:
		if kind == "call_expression" {
			return calleeName(node.ChildByFieldName("function"), ex.content)
		}
	case lang.Rust:
		switch kind {
		case "call_expression":
			return calleeName(node.ChildByFieldName("function"), ex.content)
		case "macro_invocation":
			if m := node.ChildByFieldName("macro"); m != nil {
				return m.Utf8Text(ex.content)
			}
		}
	case lang.C, lang.Cpp:
		if kind == "call_expression" {
			return calleeName(node.ChildByFieldName("function"), ex.content)
		}
	case lang.PHP:
		switch kind {
		case "function_call_expression":
			return calleeName(node.ChildByFieldName("function"), ex.content)
		case "member_call_expression", "scoped_call_expression":
			if name := node.ChildByFieldName("name"); name != nil {
				return name.Utf8Text(ex.content)
			}
		}
	}
	return ""
}

// calleeName reduces a callee expression to its rightmost simple name.
func calleeName(fn *tree_sitter.Node, content []byte) string {
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier", "field_identifier", "property_identifier", "name",
		"identifier_name", "type_identifier":
		return fn.Utf8Text(content)
	case "member_expression": // js/ts obj.fn()
		if prop := fn.ChildByFieldName("property"); prop != nil {
			return prop.Utf8Text(content)
		}
	case "attribute": // python obj.fn()
		if attr := fn.ChildByFieldName("attribute"); attr != nil {
			return attr.Utf8Text(content)
		}
	case "selector_expression": // go pkg.Fn()
		if field := fn.ChildByFieldName("field"); field != nil {
			return field.Utf8Text(content)
		}
	case "field_expression": // rust/c++ obj.fn()
		if field := fn.ChildByFieldName("field"); field != nil {
			return field.Utf8Text(content)
		}
	case "member_access_expression": // c# obj.Fn()
		if name := fn.ChildByFieldName("name"); name != nil {
			return name.Utf8Text(content)
		}
	case "scoped_identifier", "qualified_identifier": // rust path::fn, c++ ns::fn
		text := fn.Utf8Text(content)
		if i := strings.LastIndex(text, "::"); i >= 0 {
			return text[i+2:]
		}
		return text
	case "parenthesized_expression":
		if fn.NamedChildCount() == 1 {
			return calleeName(fn.NamedChild(0), content)
		}
	}
	return ""
}

// collectHeritage emits extends/implements/trait-impl records for
// declarations carrying heritage clauses.
func (ex *extraction) collectHeritage(kind string, node *tree_sitter.Node) {
	switch ex.task.Language {
	case lang.TypeScript, lang.JavaScript:
		if kind != "class_declaration" && kind != "abstract_class_declaration" {
			return
		}
		className := fieldText(node, "name", ex.content)
		if className == "" {
			return
		}
		heritage := firstChildOfKind(node, "class_heritage")
		if heritage == nil {
			return
		}
		if ex.task.Language == lang.JavaScript {
			// js: class_heritage wraps the extended expression directly
			for i := uint(0); i < heritage.NamedChildCount(); i++ {
				if c := heritage.NamedChild(i); c != nil {
					ex.addHeritage(className, rightmostName(c.Utf8Text(ex.content)), HeritageExtends)
				}
			}
			return
		}
		if ec := firstChildOfKind(heritage, "extends_clause"); ec != nil {
			for i := uint(0); i < ec.NamedChildCount(); i++ {
				if c := ec.NamedChild(i); c != nil {
					ex.addHeritage(className, rightmostName(c.Utf8Text(ex.content)), HeritageExtends)
				}
			}
		}
		if ic := firstChildOfKind(heritage, "implements_clause"); ic != nil {
			for i := uint(0); i < ic.NamedChildCount(); i++ {
				if c := ic.NamedChild(i); c != nil {
					ex.addHeritage(className, rightmostName(c.Utf8Text(ex.content)), HeritageImplements)
				}
			}
		}
	case lang.Python:
		if kind != "class_definition" {
			return
		}
		className := fieldText(node, "name", ex.content)
		supers := node.ChildByFieldName("superclasses")
		if className == "" || supers == nil {
			return
		}
		for i := uint(0); i < supers.NamedChildCount(); i++ {
			c := supers.NamedChild(i)
			if c == nil {
				continue
			}
			if c.Kind() == "identifier" || c.Kind() == "attribute" {
				ex.addHeritage(className, rightmostName(c.Utf8Text(ex.content)), HeritageExtends)
			}
		}
	case lang.Java:
		if kind != "class_declaration" && kind != "interface_declaration" {
			return
		}
		className := fieldText(node, "name", ex.content)
		if className == "" {
			return
		}
		if sc := node.ChildByFieldName("superclass"); sc != nil {
			ex.addHeritage(className, rightmostName(strings.TrimSpace(strings.TrimPrefix(sc.Utf8Text(ex.content), "extends"))), HeritageExtends)
		}
		if ifs := node.ChildByFieldName("interfaces"); ifs != nil {
			if list := firstChildOfKind(ifs, "type_list"); list != nil {
				for i := uint(0); i < list.NamedChildCount(); i++ {
					if c := list.NamedChild(i); c != nil {
						ex.addHeritage(className, rightmostName(c.Utf8Text(ex.content)), HeritageImplements)
					}
				}
			}
		}
	case lang.CSharp:
		switch kind {
		case "class_declaration", "interface_declaration", "struct_declaration", "record_declaration":
		default:
			return
		}
		className := fieldText(node, "name", ex.content)
		bases := firstChildOfKind(node, "base_list")
		if className == "" || bases == nil {
			return
		}
		// C# base lists are syntactically uniform; by convention the base
		// class comes first and interfaces follow.
		first := true
		for i := uint(0); i < bases.NamedChildCount(); i++ {
			c := bases.NamedChild(i)
			if c == nil {
				continue
			}
			relKind := HeritageImplements
			if first && kind == "class_declaration" {
				relKind = HeritageExtends
			}
			first = false
			ex.addHeritage(className, rightmostName(c.Utf8Text(ex.content)), relKind)
		}
	case lang.Rust:
		if kind != "impl_item" {
			return
		}
		traitNode := node.ChildByFieldName("trait")
		typeNode := node.ChildByFieldName("type")
		if traitNode == nil || typeNode == nil {
			return
		}
		ex.addHeritage(rightmostName(typeNode.Utf8Text(ex.content)),
			rightmostName(traitNode.Utf8Text(ex.content)), HeritageTraitImpl)
	case lang.PHP:
		if kind != "class_declaration" && kind != "interface_declaration" {
			return
		}
		className := fieldText(node, "name", ex.content)
		if className == "" {
			return
		}
		if bc := firstChildOfKind(node, "base_clause"); bc != nil {
			for i := uint(0); i < bc.NamedChildCount(); i++ {
				if c := bc.NamedChild(i); c != nil {
					ex.addHeritage(className, rightmostName(c.Utf8Text(ex.content)), HeritageExtends)
				}
			}
		}
		if ic := firstChildOfKind(node, "class_interface_clause"); ic != nil {
			for i := uint(0); i < ic.NamedChildCount(); i++ {
				if c := ic.NamedChild(i); c != nil {
					ex.addHeritage(className, rightmostName(c.Utf8Text(ex.content)), HeritageImplements)
				}
			}
		}
	case lang.C, lang.Cpp:
		if kind != "class_specifier" && kind != "struct_specifier" {
			return
		}
		className := fieldText(node, "name", ex.content)
		bases := firstChildOfKind(node, "base_class_clause")
		if className == "" || bases == nil {
			return
		}
		for i := uint(0); i < bases.NamedChildCount(); i++ {
			c := bases.NamedChild(i)
			if c == nil {
				continue
			}
			if c.Kind() == "type_identifier" || c.Kind() == "qualified_identifier" {
				ex.addHeritage(className, rightmostName(c.Utf8Text(ex.content)), HeritageExtends)
			}
		}
	}
}

func (ex *extraction) addHeritage(className, parentName, kind string) {
	if className == "" || parentName == "" {
		return
	}
	ex.result.Heritage = append(ex.result.Heritage, HeritageRecord{
		FilePath:   ex.task.FilePath,
		ClassName:  className,
		ParentName: parentName,
		Kind:       kind,
	})
}

// Tree helpers.

func firstChildOfKind(node *tree_sitter.Node, kind string) *tree_sitter.Node {
	for i := uint(0); i < node.ChildCount(); i++ {
		if c := node.Child(i); c != nil && c.Kind() == kind {
			return c
		}
	}
	return nil
}

func firstChildOfAnyKind(node *tree_sitter.Node, kinds ...string) *tree_sitter.Node {
	for i := uint(0); i < node.ChildCount(); i++ {
		c := node.Child(i)
		if c == nil {
			continue
		}
		for _, k := range kinds {
			if c.Kind() == k {
				return c
			}
		}
	}
	return nil
}

func hasAncestorOfKind(node *tree_sitter.Node, kind string) bool {
	for p := node.Parent(); p != nil; p = p.Parent() {
		if p.Kind() == kind {
			return true
		}
	}
	return false
}

func fieldText(node *tree_sitter.Node, field string, content []byte) string {
	if c := node.ChildByFieldName(field); c != nil {
		return c.Utf8Text(content)
	}
	return ""
}

// rightmostName reduces a possibly qualified or generic type expression
// to its simple name.
func rightmostName(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, "<("); i >= 0 {
		text = text[:i]
	}
	for _, sep := range []string{"::", "."} {
		if i := strings.LastIndex(text, sep); i >= 0 {
			text = text[i+len(sep):]
		}
	}
	return strings.TrimSpace(text)
}

func stripQuotes(s string) string {
	return strings.Trim(s, "\"'`")
}
