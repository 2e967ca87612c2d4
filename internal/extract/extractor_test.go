package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas/codeatlas/internal/graph"
	"github.com/codeatlas/codeatlas/internal/lang"
	"github.com/codeatlas/codeatlas/internal/parser"
)

func runExtract(t *testing.T, filePath, langTag, source string) *FileResult {
	t.Helper()
	host := parser.NewHost(4)
	t.Cleanup(host.Close)
	result := Run(host, Task{FilePath: filePath, Content: []byte(source), Language: langTag})
	require.False(t, result.Failed, "extraction failed: %v", result.Err)
	return result
}

func definitionNames(result *FileResult) map[string]graph.NodeKind {
	out := make(map[string]graph.NodeKind)
	for _, d := range result.Definitions {
		out[d.Name] = d.Kind
	}
	return out
}

func TestExtract_TypeScript(t *testing.T) {
	source := `import { validateInput } from './validator';

export function handleRequest(input: string): string {
  const valid = validateInput(input);
  return formatResponse(valid);
}

function formatResponse(value: string): string {
  return value.trim();
}

export class RequestHandler {
  handle(input: string): string {
    return handleRequest(input);
  }
}

export interface Handler {
  handle(input: string): string;
}
`
	result := runExtract(t, "src/handler.ts", lang.TypeScript, source)

	defs := definitionNames(result)
	assert.Equal(t, graph.KindFunction, defs["handleRequest"])
	assert.Equal(t, graph.KindFunction, defs["formatResponse"])
	assert.Equal(t, graph.KindClass, defs["RequestHandler"])
	assert.Equal(t, graph.KindMethod, defs["handle"])
	assert.Equal(t, graph.KindInterface, defs["Handler"])

	// Export detection: the export keyword marks visibility.
	byName := make(map[string]Definition)
	for _, d := range result.Definitions {
		byName[d.Name] = d
	}
	assert.True(t, byName["handleRequest"].IsExported)
	assert.False(t, byName["formatResponse"].IsExported)
	assert.True(t, byName["RequestHandler"].IsExported)

	// Imports carry the raw specifier.
	require.Len(t, result.Imports, 1)
	assert.Equal(t, "./validator", result.Imports[0].Specifier)

	// Calls attribute to the enclosing definition.
	called := make(map[string]string)
	for _, c := range result.Calls {
		called[c.CalledName] = c.SourceID
	}
	handleRequestDef := byName["handleRequest"]
	handleID := handleRequestDef.NodeID()
	assert.Equal(t, handleID, called["validateInput"])
	assert.Equal(t, handleID, called["formatResponse"])
	assert.Contains(t, called, "handleRequest")
}

func TestExtract_TypeScriptHeritage(t *testing.T) {
	source := `class Base {}
interface Closable { close(): void; }
export class Child extends Base implements Closable {
  close(): void {}
}
`
	result := runExtract(t, "src/model.ts", lang.TypeScript, source)

	var kinds []string
	for _, h := range result.Heritage {
		kinds = append(kinds, h.Kind+":"+h.ClassName+"->"+h.ParentName)
	}
	assert.Contains(t, kinds, "extends:Child->Base")
	assert.Contains(t, kinds, "implements:Child->Closable")
}

func TestExtract_Go(t *testing.T) {
	source := `package server

import "fmt"

type Server struct{}

type Runner interface {
	Run() error
}

func NewServer() *Server {
	return &Server{}
}

func (s *Server) Start() error {
	fmt.Println("starting")
	return launch(s)
}

func launch(s *Server) error {
	return nil
}

const MaxRetries = 3
`
	result := runExtract(t, "internal/server/server.go", lang.Go, source)

	defs := definitionNames(result)
	assert.Equal(t, graph.KindStruct, defs["Server"])
	assert.Equal(t, graph.KindInterface, defs["Runner"])
	assert.Equal(t, graph.KindFunction, defs["NewServer"])
	assert.Equal(t, graph.KindMethod, defs["Start"])
	assert.Equal(t, graph.KindConst, defs["MaxRetries"])

	byName := make(map[string]Definition)
	for _, d := range result.Definitions {
		byName[d.Name] = d
	}
	assert.True(t, byName["NewServer"].IsExported, "uppercase initial is exported")
	assert.False(t, byName["launch"].IsExported)

	require.NotEmpty(t, result.Imports)
	assert.Equal(t, "fmt", result.Imports[0].Specifier)

	called := make(map[string]string)
	for _, c := range result.Calls {
		called[c.CalledName] = c.SourceID
	}
	startDef := byName["Start"]
	assert.Equal(t, startDef.NodeID(), called["launch"])
	assert.Contains(t, called, "Println")
}

func TestExtract_Python(t *testing.T) {
	source := `from app.db import connect

class BaseModel:
    def save(self):
        connect()

class User(BaseModel):
    def greet(self):
        return self._format()

    def _format(self):
        return "hi"

def build_user():
    return User()
`
	result := runExtract(t, "app/models.py", lang.Python, source)

	defs := definitionNames(result)
	assert.Equal(t, graph.KindClass, defs["BaseModel"])
	assert.Equal(t, graph.KindClass, defs["User"])
	assert.Equal(t, graph.KindMethod, defs["save"], "functions inside classes are methods")
	assert.Equal(t, graph.KindMethod, defs["greet"])
	assert.Equal(t, graph.KindFunction, defs["build_user"])

	byName := make(map[string]Definition)
	for _, d := range result.Definitions {
		byName[d.Name] = d
	}
	assert.False(t, byName["_format"].IsExported, "leading underscore is private by convention")
	assert.True(t, byName["build_user"].IsExported)

	require.NotEmpty(t, result.Imports)
	assert.Equal(t, "app.db", result.Imports[0].Specifier)

	var heritage []string
	for _, h := range result.Heritage {
		heritage = append(heritage, h.Kind+":"+h.ClassName+"->"+h.ParentName)
	}
	assert.Contains(t, heritage, "extends:User->BaseModel")
}

func TestExtract_DefinitionOrderIsStable(t *testing.T) {
	source := `export function first() {}
export function second() {}
export function third() {}
`
	result := runExtract(t, "src/order.ts", lang.TypeScript, source)
	require.Len(t, result.Definitions, 3)
	assert.Equal(t, "first", result.Definitions[0].Name)
	assert.Equal(t, "second", result.Definitions[1].Name)
	assert.Equal(t, "third", result.Definitions[2].Name)
	assert.Equal(t, 1, result.Definitions[0].StartLine)
}

func TestExtract_UnsupportedGrammar(t *testing.T) {
	host := parser.NewHost(4)
	defer host.Close()
	result := Run(host, Task{FilePath: "App.swift", Content: []byte("print(1)"), Language: lang.Swift})
	assert.True(t, result.Failed, "swift grammar is absent at runtime")
}

func TestExtract_OverloadedNamesStayDistinct(t *testing.T) {
	source := `class A { render(): void {} }
class B { render(): void {} }
`
	result := runExtract(t, "src/two.ts", lang.TypeScript, source)

	var ids []string
	for _, d := range result.Definitions {
		if d.Name == "render" {
			ids = append(ids, d.NodeID())
		}
	}
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1], "start line keeps same-name symbols distinct")
}
