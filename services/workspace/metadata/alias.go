// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metadata

import (
	"sort"
	"strings"

	"github.com/mstoykov/atlas"
)

// aliasRoot interns every alias set in the process so equal sets share one node.
var aliasRoot = atlas.New()

// AliasSet is an interned, order-insensitive set of reference aliases.
//
// Two AliasSets holding the same aliases compare equal with ==, which makes
// the type usable directly inside map keys. The zero AliasSet is empty.
type AliasSet struct {
	node *atlas.Node
}

// NewAliasSet interns the given aliases. Blank entries and duplicates are ignored.
func NewAliasSet(aliases ...string) AliasSet {
	n := aliasRoot
	for _, a := range aliases {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		n = n.AddLink(a, "")
	}
	if n.IsRoot() {
		return AliasSet{}
	}
	return AliasSet{node: n}
}

// Aliases returns the aliases in sorted order.
func (s AliasSet) Aliases() []string {
	if s.node == nil {
		return nil
	}
	path := s.node.Path()
	out := make([]string, 0, len(path))
	for k := range path {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of aliases.
func (s AliasSet) Len() int {
	if s.node == nil {
		return 0
	}
	return s.node.Len()
}

// IsEmpty reports whether the set has no aliases.
func (s AliasSet) IsEmpty() bool {
	return s.node == nil
}

// Contains reports whether alias is in the set.
func (s AliasSet) Contains(alias string) bool {
	if s.node == nil {
		return false
	}
	_, ok := s.node.ValueByKey(alias)
	return ok
}

// With returns the set plus alias.
func (s AliasSet) With(alias string) AliasSet {
	return NewAliasSet(append(s.Aliases(), alias)...)
}

func (s AliasSet) String() string {
	return "[" + strings.Join(s.Aliases(), ",") + "]"
}
