package graph

import (
	"fmt"
	"strings"
)

// NodeKind identifies the label of a graph node.
type NodeKind string

const (
	KindFile      NodeKind = "File"
	KindFolder    NodeKind = "Folder"
	KindFunction  NodeKind = "Function"
	KindMethod    NodeKind = "Method"
	KindClass     NodeKind = "Class"
	KindInterface NodeKind = "Interface"
	// CodeElement is the catch-all for symbols that do not map to a
	// more specific kind in the source language.
	KindCodeElement NodeKind = "CodeElement"

	KindStruct      NodeKind = "Struct"
	KindEnum        NodeKind = "Enum"
	KindMacro       NodeKind = "Macro"
	KindTypedef     NodeKind = "Typedef"
	KindUnion       NodeKind = "Union"
	KindNamespace   NodeKind = "Namespace"
	KindTrait       NodeKind = "Trait"
	KindImpl        NodeKind = "Impl"
	KindTypeAlias   NodeKind = "TypeAlias"
	KindConst       NodeKind = "Const"
	KindStatic      NodeKind = "Static"
	KindProperty    NodeKind = "Property"
	KindRecord      NodeKind = "Record"
	KindDelegate    NodeKind = "Delegate"
	KindAnnotation  NodeKind = "Annotation"
	KindConstructor NodeKind = "Constructor"
	KindTemplate    NodeKind = "Template"
	KindModule      NodeKind = "Module"

	KindCommunity NodeKind = "Community"
	KindProcess   NodeKind = "Process"
)

// symbolKinds lists every label that represents a code symbol (as opposed
// to files, folders and derived nodes).
var symbolKinds = map[NodeKind]bool{
	KindFunction: true, KindMethod: true, KindClass: true, KindInterface: true,
	KindCodeElement: true, KindStruct: true, KindEnum: true, KindMacro: true,
	KindTypedef: true, KindUnion: true, KindNamespace: true, KindTrait: true,
	KindImpl: true, KindTypeAlias: true, KindConst: true, KindStatic: true,
	KindProperty: true, KindRecord: true, KindDelegate: true, KindAnnotation: true,
	KindConstructor: true, KindTemplate: true, KindModule: true,
}

// IsSymbolKind reports whether the kind is a code symbol label.
func IsSymbolKind(k NodeKind) bool { return symbolKinds[k] }

// RelType identifies the type of a relationship.
type RelType string

const (
	RelContains      RelType = "CONTAINS"
	RelDefines       RelType = "DEFINES"
	RelImports       RelType = "IMPORTS"
	RelCalls         RelType = "CALLS"
	RelExtends       RelType = "EXTENDS"
	RelImplements    RelType = "IMPLEMENTS"
	RelMemberOf      RelType = "MEMBER_OF"
	RelStepInProcess RelType = "STEP_IN_PROCESS"
)

// Properties is the label-specific payload of a node. FilePath returns
// the repo-relative path the node belongs to, or "" for derived nodes;
// the graph uses it to maintain the by-file index.
type Properties interface {
	FilePath() string
}

// FileProps holds File node properties.
type FileProps struct {
	Name    string
	Path    string // repo-relative, forward slashes
	Content string
}

func (p *FileProps) FilePath() string { return p.Path }

// FolderProps holds Folder node properties.
type FolderProps struct {
	Name string
	Path string
}

func (p *FolderProps) FilePath() string { return p.Path }

// SymbolProps holds the properties shared by every code symbol node.
type SymbolProps struct {
	Name        string
	Path        string
	StartLine   int
	EndLine     int
	IsExported  bool
	Content     string
	Description string
	Language    string
}

func (p *SymbolProps) FilePath() string { return p.Path }

// CommunityProps holds derived Community node properties.
type CommunityProps struct {
	Name           string
	HeuristicLabel string
	Keywords       []string
	Description    string
	EnrichedBy     string
	Cohesion       float64
	SymbolCount    int
	Color          string
}

func (p *CommunityProps) FilePath() string { return "" }

// ProcessProps holds derived Process node properties.
type ProcessProps struct {
	HeuristicLabel string
	ProcessType    string // intra_community | cross_community
	StepCount      int
	Communities    []string
	EntryPointID   string
	TerminalID     string
	Trace          []string
}

func (p *ProcessProps) FilePath() string { return "" }

const (
	ProcessTypeIntraCommunity = "intra_community"
	ProcessTypeCrossCommunity = "cross_community"
)

// Node is a graph node: a stable unique id, a label, and the label's
// property payload.
type Node struct {
	ID    string
	Label NodeKind
	Props Properties

	seq int // position in insertion order, maintained by Graph
}

// Relationship is a typed edge. The id derives from (source, type,
// target) so duplicate adds collapse.
type Relationship struct {
	ID         string
	Type       RelType
	SourceID   string
	TargetID   string
	Confidence float64
	Reason     string
	Step       int // 1-based for STEP_IN_PROCESS, 0 otherwise

	seq int
}

// RelationshipID builds the canonical edge id.
func RelationshipID(sourceID string, t RelType, targetID string) string {
	return sourceID + "-" + string(t) + "-" + targetID
}

// FileNodeID builds the id of a File node.
func FileNodeID(filePath string) string { return "File:" + filePath }

// FolderNodeID builds the id of a Folder node.
func FolderNodeID(filePath string) string { return "Folder:" + filePath }

// SymbolNodeID builds the id of a code symbol node. The start line keeps
// overloaded names in the same file distinct.
func SymbolNodeID(kind NodeKind, filePath, name string, startLine int) string {
	return fmt.Sprintf("%s:%s:%s:%d", kind, filePath, name, startLine)
}

// NewFileNode builds a File node for a repo-relative path.
func NewFileNode(filePath, content string) *Node {
	return &Node{
		ID:    FileNodeID(filePath),
		Label: KindFile,
		Props: &FileProps{Name: baseName(filePath), Path: filePath, Content: content},
	}
}

// NewFolderNode builds a Folder node for a repo-relative directory path.
func NewFolderNode(dirPath string) *Node {
	return &Node{
		ID:    FolderNodeID(dirPath),
		Label: KindFolder,
		Props: &FolderProps{Name: baseName(dirPath), Path: dirPath},
	}
}

func baseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
