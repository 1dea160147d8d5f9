// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package solution

import (
	"sort"

	"github.com/mstoykov/atlas"
)

var optionsRoot = atlas.New()

// Options is an interned set of key/value compiler or parser settings.
//
// Equal settings share one node, so Options compare with == and an
// unchanged option set costs nothing to carry across snapshots.
type Options struct {
	node *atlas.Node
}

// NewOptions interns settings. Empty keys are ignored.
func NewOptions(settings map[string]string) Options {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	n := optionsRoot
	for _, k := range keys {
		n = n.AddLink(k, settings[k])
	}
	if n.IsRoot() {
		return Options{}
	}
	return Options{node: n}
}

// Get returns the value for key.
func (o Options) Get(key string) (string, bool) {
	if o.node == nil {
		return "", false
	}
	return o.node.ValueByKey(key)
}

// With returns the options with key set to value.
func (o Options) With(key, value string) Options {
	if key == "" {
		return o
	}
	n := o.node
	if n == nil {
		n = optionsRoot
	}
	return Options{node: n.AddLink(key, value)}
}

// Without returns the options with key removed.
func (o Options) Without(key string) Options {
	if o.node == nil {
		return o
	}
	n := o.node.DeleteKey(key)
	if n.IsRoot() {
		return Options{}
	}
	return Options{node: n}
}

// Map returns a copy of the settings.
func (o Options) Map() map[string]string {
	if o.node == nil {
		return map[string]string{}
	}
	return o.node.Path()
}

// Len returns the number of settings.
func (o Options) Len() int {
	if o.node == nil {
		return 0
	}
	return o.node.Len()
}
