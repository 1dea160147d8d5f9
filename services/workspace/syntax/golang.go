// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package syntax

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/metadata"
)

// parseGo extracts declarations from one Go file.
//
// Function and method signatures stop at the body. Type, const and var
// specs are taken whole, so exported struct fields and constant values are
// part of the surface.
func parseGo(ctx context.Context, src SourceFile) (fileResult, error) {
	content := []byte(src.Text)
	if !utf8.Valid(content) {
		return fileResult{diagnostics: []Diagnostic{invalidUTF8(src.Path)}}, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return fileResult{}, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()
	recordParse(ctx, "go")

	root := tree.RootNode()
	res := fileResult{}
	if root == nil {
		return res, nil
	}
	res.diagnostics = syntaxErrors(root, src.Path)

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "package_clause":
			for j := 0; j < int(node.NamedChildCount()); j++ {
				if c := node.NamedChild(j); c.Type() == "package_identifier" {
					res.pkg = c.Content(content)
				}
			}
		case "function_declaration":
			name := fieldText(node, "name", content)
			res.add(metadata.Symbol{
				Name:      name,
				Kind:      "function",
				Signature: headerText(node, content),
			}, isExportedGo(name))
		case "method_declaration":
			name := fieldText(node, "name", content)
			recv := receiverType(node.ChildByFieldName("receiver"), content)
			res.add(metadata.Symbol{
				Name:      recv + "." + name,
				Kind:      "method",
				Signature: headerText(node, content),
			}, isExportedGo(recv) && isExportedGo(name))
		case "type_declaration":
			for j := 0; j < int(node.NamedChildCount()); j++ {
				spec := node.NamedChild(j)
				if spec.Type() != "type_spec" && spec.Type() != "type_alias" {
					continue
				}
				name := fieldText(spec, "name", content)
				res.add(metadata.Symbol{
					Name:      name,
					Kind:      "type",
					Signature: "type " + normalize(spec.Content(content)),
				}, isExportedGo(name))
			}
		case "const_declaration", "var_declaration":
			kind := strings.TrimSuffix(node.Type(), "_declaration")
			for _, spec := range valueSpecs(node) {
				for _, name := range specNames(spec, content) {
					res.add(metadata.Symbol{
						Name:      name,
						Kind:      kind,
						Signature: valueSignature(kind, spec, content),
					}, isExportedGo(name))
				}
			}
		}
	}
	return res, nil
}

func (r *fileResult) add(sym metadata.Symbol, exported bool) {
	if sym.Name == "" {
		return
	}
	r.symbols = append(r.symbols, declared{symbol: sym, exported: exported})
}

func isExportedGo(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

func fieldText(node *sitter.Node, field string, content []byte) string {
	c := node.ChildByFieldName(field)
	if c == nil {
		return ""
	}
	return c.Content(content)
}

// headerText returns the declaration text before its body.
func headerText(node *sitter.Node, content []byte) string {
	end := node.EndByte()
	if body := node.ChildByFieldName("body"); body != nil {
		end = body.StartByte()
	}
	return normalize(string(content[node.StartByte():end]))
}

// receiverType finds the named type of a method receiver, dropping pointers
// and type arguments.
func receiverType(recv *sitter.Node, content []byte) string {
	if recv == nil {
		return ""
	}
	var name string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if name != "" {
			return
		}
		if n.Type() == "type_identifier" {
			name = n.Content(content)
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(recv)
	return name
}

func valueSpecs(decl *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		c := decl.NamedChild(i)
		switch c.Type() {
		case "const_spec", "var_spec":
			out = append(out, c)
		case "var_spec_list", "const_spec_list":
			out = append(out, valueSpecs(c)...)
		}
	}
	return out
}

func specNames(spec *sitter.Node, content []byte) []string {
	var names []string
	for i := 0; i < int(spec.NamedChildCount()); i++ {
		c := spec.NamedChild(i)
		if c.Type() != "identifier" {
			break
		}
		names = append(names, c.Content(content))
	}
	return names
}

// valueSignature keeps constant values but drops variable initializers.
func valueSignature(kind string, spec *sitter.Node, content []byte) string {
	if kind == "const" {
		return "const " + normalize(spec.Content(content))
	}
	end := spec.EndByte()
	if v := spec.ChildByFieldName("value"); v != nil {
		end = v.StartByte()
	}
	text := strings.TrimSpace(string(content[spec.StartByte():end]))
	return "var " + normalize(strings.TrimSuffix(text, "="))
}

func invalidUTF8(path string) Diagnostic {
	return Diagnostic{Severity: SeverityError, Path: path, Message: "source is not valid UTF-8"}
}

// syntaxErrors reports the first line of each ERROR or missing node.
func syntaxErrors(root *sitter.Node, path string) []Diagnostic {
	if !root.HasError() {
		return nil
	}
	var out []Diagnostic
	seen := map[uint32]bool{}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.IsMissing() || n.Type() == "ERROR" {
			row := n.StartPoint().Row
			if !seen[row] {
				seen[row] = true
				msg := "syntax error"
				if n.IsMissing() {
					msg = "missing " + n.Type()
				}
				out = append(out, Diagnostic{
					Severity: SeverityError,
					Path:     path,
					Line:     int(row) + 1,
					Message:  msg,
				})
			}
			return
		}
		if !n.HasError() {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return out
}
