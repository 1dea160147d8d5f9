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
	"github.com/benbjohnson/immutable"
)

// docSet is a persistent id-keyed document collection with display order.
//
// Replacing a document shares the order slice and every other document with
// the source set.
type docSet struct {
	byID  *immutable.SortedMap[DocumentID, *Document]
	order []DocumentID
}

func newDocSet() docSet {
	return docSet{byID: immutable.NewSortedMap[DocumentID, *Document](documentIDComparer{})}
}

func (s docSet) get(id DocumentID) (*Document, bool) {
	return s.byID.Get(id)
}

func (s docSet) len() int {
	return s.byID.Len()
}

func (s docSet) add(d *Document) docSet {
	return docSet{
		byID:  s.byID.Set(d.ID(), d),
		order: appendCopy(s.order, d.ID()),
	}
}

func (s docSet) replace(d *Document) docSet {
	return docSet{
		byID:  s.byID.Set(d.ID(), d),
		order: s.order,
	}
}

func (s docSet) remove(id DocumentID) docSet {
	for i, existing := range s.order {
		if existing == id {
			return docSet{
				byID:  s.byID.Delete(id),
				order: removeAt(s.order, i),
			}
		}
	}
	return s
}

func (s docSet) ids() []DocumentID {
	out := make([]DocumentID, len(s.order))
	copy(out, s.order)
	return out
}

func (s docSet) list() []*Document {
	out := make([]*Document, 0, len(s.order))
	for _, id := range s.order {
		if d, ok := s.byID.Get(id); ok {
			out = append(out, d)
		}
	}
	return out
}
