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
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/metadata"
)

// parsePython extracts module-level functions, classes with their methods,
// and module-level assignments. Names starting with an underscore are private.
func parsePython(ctx context.Context, src SourceFile) (fileResult, error) {
	content := []byte(src.Text)
	if !utf8.Valid(content) {
		return fileResult{diagnostics: []Diagnostic{invalidUTF8(src.Path)}}, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return fileResult{}, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()
	recordParse(ctx, "python")

	root := tree.RootNode()
	res := fileResult{}
	if root == nil {
		return res, nil
	}
	res.diagnostics = syntaxErrors(root, src.Path)

	for i := 0; i < int(root.NamedChildCount()); i++ {
		pyDefinition(root.NamedChild(i), "", content, &res)
	}
	return res, nil
}

func pyDefinition(node *sitter.Node, owner string, content []byte, res *fileResult) {
	switch node.Type() {
	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			pyDefinition(def, owner, content, res)
		}
	case "function_definition":
		name := fieldText(node, "name", content)
		kind, full := "function", name
		if owner != "" {
			kind, full = "method", owner+"."+name
		}
		res.add(metadata.Symbol{
			Name:      full,
			Kind:      kind,
			Signature: strings.TrimSuffix(headerText(node, content), ":"),
		}, isPublicPy(owner) && isPublicPy(name))
	case "class_definition":
		name := fieldText(node, "name", content)
		res.add(metadata.Symbol{
			Name:      name,
			Kind:      "class",
			Signature: strings.TrimSuffix(headerText(node, content), ":"),
		}, isPublicPy(name))
		body := node.ChildByFieldName("body")
		if body == nil || owner != "" {
			return
		}
		for i := 0; i < int(body.NamedChildCount()); i++ {
			pyDefinition(body.NamedChild(i), name, content, res)
		}
	case "expression_statement":
		if owner != "" || node.NamedChildCount() == 0 {
			return
		}
		assign := node.NamedChild(0)
		if assign.Type() != "assignment" {
			return
		}
		left := assign.ChildByFieldName("left")
		if left == nil || left.Type() != "identifier" {
			return
		}
		name := left.Content(content)
		sig := name
		if typ := assign.ChildByFieldName("type"); typ != nil {
			sig += ": " + normalize(typ.Content(content))
		}
		res.add(metadata.Symbol{
			Name:      name,
			Kind:      "variable",
			Signature: sig,
		}, isPublicPy(name))
	}
}

// isPublicPy treats an empty owner as public so module-level names pass.
func isPublicPy(name string) bool {
	return name == "" || !strings.HasPrefix(name, "_") || isDunder(name)
}

func isDunder(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}
