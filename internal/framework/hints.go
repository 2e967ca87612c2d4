// Package framework scores file paths and definition text against a
// curated pattern table to bias entry-point detection toward framework
// entry surfaces.
package framework

import (
	"regexp"
	"strings"

	"github.com/codeatlas/codeatlas/internal/lang"
)

// Hint is a framework detection result.
type Hint struct {
	Framework  string
	Multiplier float64
	Reason     string
}

type pathRule struct {
	match      func(p string) bool
	framework  string
	multiplier float64
	reason     string
}

var (
	reNextPage    = regexp.MustCompile(`/app/.*/page\.(tsx|ts|jsx|js)$`)
	reNextLayout  = regexp.MustCompile(`/app/.*/layout\.(tsx|ts)$`)
	reNextRoute   = regexp.MustCompile(`/app/.*/api/.*/route\.ts$`)
	rePagesTSJS   = regexp.MustCompile(`/pages/[^_].*\.(tsx|ts|jsx|js)$`)
	reRoutes      = regexp.MustCompile(`/routes/[^/]+\.(ts|js)$`)
	reRoutesPHP   = regexp.MustCompile(`/routes/[^/]+\.php$`)
	reHTTPCtrlPHP = regexp.MustCompile(`/http/controllers/.*\.php$`)
	reLaravelAux  = regexp.MustCompile(`/(jobs|listeners|middleware)/.*\.php$`)
	reRouters     = regexp.MustCompile(`/routers/[^/]+\.py$`)
	reHandlers    = regexp.MustCompile(`/handlers/[^/]+\.(go|ts|js|rs)$`)
	reMain        = regexp.MustCompile(`/main\.(go|rs|c|cpp|kt)$`)
	reRustBin     = regexp.MustCompile(`/src/bin/[^/]+\.rs$`)
	reViewCtrl    = regexp.MustCompile(`/viewcontrollers/[^/]+\.swift$`)
	reJavaCtrl    = regexp.MustCompile(`(/controller[^/]*/.*\.java|controller\.java)$`)
	// php controllers are matched by the more specific laravel rules.
	reCtrlDir = regexp.MustCompile(`/controllers/[^/]+\.(ts|js|java|kt|cs|go)$`)
)

// pathRules is ordered; the first match wins.
var pathRules = []pathRule{
	{func(p string) bool { return reNextRoute.MatchString(p) || strings.Contains(p, "/pages/api/") }, "nextjs-api", 3.0, "nextjs api route"},
	{func(p string) bool { return reNextPage.MatchString(p) }, "nextjs-app", 3.0, "nextjs app router page"},
	{func(p string) bool { return reNextLayout.MatchString(p) }, "nextjs-app", 2.0, "nextjs app router layout"},
	{func(p string) bool { return rePagesTSJS.MatchString(p) && !strings.Contains(p, "/pages/api/") }, "nextjs-pages", 3.0, "nextjs pages router"},
	{func(p string) bool { return reRoutes.MatchString(p) }, "express", 2.5, "express route module"},
	{func(p string) bool { return reCtrlDir.MatchString(p) }, "mvc", 2.5, "controller directory"},
	{func(p string) bool { return strings.HasSuffix(p, "views.py") }, "django", 2.0, "django views"},
	{func(p string) bool { return strings.HasSuffix(p, "urls.py") }, "django", 2.5, "django url conf"},
	{func(p string) bool { return reRouters.MatchString(p) }, "fastapi", 3.0, "fastapi router"},
	{func(p string) bool { return reJavaCtrl.MatchString(p) }, "spring", 3.0, "spring controller"},
	{func(p string) bool { return reHandlers.MatchString(p) }, "http-handlers", 2.5, "handler directory"},
	{func(p string) bool { return reMain.MatchString(p) }, "main", 3.0, "program entry file"},
	{func(p string) bool { return reRustBin.MatchString(p) }, "rust", 2.5, "cargo binary target"},
	{func(p string) bool { return reRoutesPHP.MatchString(p) }, "laravel", 3.0, "laravel routes"},
	{func(p string) bool { return reHTTPCtrlPHP.MatchString(p) }, "laravel", 3.0, "laravel http controller"},
	{func(p string) bool { return reLaravelAux.MatchString(p) }, "laravel", 2.5, "laravel app surface"},
	{func(p string) bool { return strings.HasSuffix(p, "appdelegate.swift") }, "ios", 3.0, "ios app delegate"},
	{func(p string) bool { return reViewCtrl.MatchString(p) }, "uikit", 2.5, "view controller"},
}

// DetectFromPath matches a repo-relative path against the ordered rule
// table; the first match wins. Returns nil when nothing matches.
func DetectFromPath(filePath string) *Hint {
	if filePath == "" {
		return nil
	}
	p := strings.ToLower(strings.ReplaceAll(filePath, "\\", "/"))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for _, rule := range pathRules {
		if rule.match(p) {
			return &Hint{Framework: rule.framework, Multiplier: rule.multiplier, Reason: rule.reason}
		}
	}
	return nil
}

type astRule struct {
	needle     string // lowercase substring
	framework  string
	multiplier float64
}

// astRules by language tag; the first match within the list wins.
// Languages absent here never produce an AST hint.
var astRules = map[string][]astRule{
	lang.TypeScript: {
		{"@controller", "nestjs", 3.2},
		{"@get(", "nestjs", 3.2},
		{"@post(", "nestjs", 3.2},
		{"@put(", "nestjs", 3.2},
		{"@delete(", "nestjs", 3.2},
		{"app.get(", "express", 2.8},
		{"app.post(", "express", 2.8},
		{"router.get(", "express", 2.8},
		{"router.post(", "express", 2.8},
	},
	lang.JavaScript: {
		{"app.get(", "express", 2.8},
		{"app.post(", "express", 2.8},
		{"router.get(", "express", 2.8},
		{"router.post(", "express", 2.8},
	},
	lang.Python: {
		{"@app.get", "fastapi", 3.0},
		{"@app.post", "fastapi", 3.0},
		{"@router.get", "fastapi", 3.0},
		{"@router.post", "fastapi", 3.0},
		{"@app.route", "flask", 2.8},
	},
	lang.Java: {
		{"@restcontroller", "spring", 3.2},
		{"@getmapping", "spring", 3.0},
		{"@postmapping", "spring", 3.0},
		{"@requestmapping", "spring", 3.0},
		{"@controller", "spring", 3.0},
	},
	lang.CSharp: {
		{"[apicontroller]", "aspnet", 3.2},
		{"[httpget", "aspnet", 3.0},
		{"[httppost", "aspnet", 3.0},
		{"[route(", "aspnet", 3.0},
	},
	lang.PHP: {
		{"route::get", "laravel", 3.0},
		{"route::post", "laravel", 3.0},
		{"#[route", "symfony", 3.0},
	},
	lang.Swift: {
		{"viewdidload", "uikit", 2.5},
		{"@uiapplicationmain", "uikit", 3.0},
	},
}

// astWindow bounds how much definition text is inspected.
const astWindow = 300

// DetectFromAST matches the head of a definition's text against the
// language's pattern table, case-insensitively. Returns nil for
// languages absent from the table or when nothing matches.
func DetectFromAST(langTag, astText string) *Hint {
	rules, ok := astRules[langTag]
	if !ok || astText == "" {
		return nil
	}
	window := astText
	if len(window) > astWindow {
		window = window[:astWindow]
	}
	window = strings.ToLower(window)
	for _, rule := range rules {
		if strings.Contains(window, rule.needle) {
			return &Hint{Framework: rule.framework, Multiplier: rule.multiplier, Reason: rule.needle}
		}
	}
	return nil
}
