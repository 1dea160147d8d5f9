// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianWorkspace/services/workspace/solution"
	"github.com/AleutianAI/AleutianWorkspace/services/workspace/version"
)

// EventKind classifies a workspace change notification.
type EventKind int

const (
	EventSolutionAdded EventKind = iota
	EventSolutionChanged
	EventSolutionCleared
	EventProjectAdded
	EventProjectRemoved
	EventProjectChanged
	EventDocumentAdded
	EventDocumentRemoved
	EventDocumentChanged
	EventAdditionalDocumentChanged
	EventDiagnostic
)

func (k EventKind) String() string {
	switch k {
	case EventSolutionAdded:
		return "solution_added"
	case EventSolutionChanged:
		return "solution_changed"
	case EventSolutionCleared:
		return "solution_cleared"
	case EventProjectAdded:
		return "project_added"
	case EventProjectRemoved:
		return "project_removed"
	case EventProjectChanged:
		return "project_changed"
	case EventDocumentAdded:
		return "document_added"
	case EventDocumentRemoved:
		return "document_removed"
	case EventDocumentChanged:
		return "document_changed"
	case EventAdditionalDocumentChanged:
		return "additional_document_changed"
	case EventDiagnostic:
		return "diagnostic"
	default:
		return "unknown"
	}
}

// Event is one change notification.
//
// Events are delivered in publication order, after NewSolution has become
// the workspace's current solution.
type Event struct {
	Kind        EventKind
	OldSolution *solution.Solution
	NewSolution *solution.Solution

	ProjectID  solution.ProjectID
	DocumentID solution.DocumentID

	// Diagnostic is set for EventDiagnostic.
	Diagnostic *Diagnostic
}

// Version returns the newest version carried by the event's new solution.
func (e Event) Version() version.Stamp {
	if e.NewSolution == nil {
		return version.Stamp{}
	}
	return version.Newer(e.NewSolution.Version(), e.NewSolution.LatestProjectVersion())
}

type subscriber struct {
	id  uuid.UUID
	fn  func(Event)
	off func()

	// after is the sequence number of the last event published before the
	// subscription; earlier queued events are skipped.
	after uint64
}

type queued struct {
	seq uint64
	ev  Event
}

// dispatcher delivers events to subscribers on one goroutine so every
// subscriber sees the same order.
type dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []queued
	seq    uint64
	subs   []subscriber
	closed bool
	done   chan struct{}
	panics func(recovered interface{})
}

func newDispatcher(panics func(interface{})) *dispatcher {
	d := &dispatcher{done: make(chan struct{}), panics: panics}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	for _, ev := range events {
		d.seq++
		d.queue = append(d.queue, queued{seq: d.seq, ev: ev})
	}
	d.cond.Signal()
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			subs := d.subs
			d.subs = nil
			d.mu.Unlock()
			for _, s := range subs {
				if s.off != nil {
					s.off()
				}
			}
			return
		}
		next := d.queue[0]
		d.queue[0] = queued{}
		d.queue = d.queue[1:]
		subs := append([]subscriber(nil), d.subs...)
		d.mu.Unlock()

		for _, s := range subs {
			if next.seq > s.after {
				d.deliver(s, next.ev)
			}
		}
	}
}

func (d *dispatcher) deliver(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil && d.panics != nil {
			d.panics(r)
		}
	}()
	s.fn(ev)
}

func (d *dispatcher) subscribe(fn func(Event), off func()) func() {
	s := subscriber{id: uuid.New(), fn: fn, off: off}
	d.mu.Lock()
	s.after = d.seq
	if d.closed {
		d.mu.Unlock()
		if off != nil {
			off()
		}
		return func() {}
	}
	d.subs = append(d.subs, s)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			removed := false
			for i, existing := range d.subs {
				if existing.id == s.id {
					d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
					removed = true
					break
				}
			}
			d.mu.Unlock()
			if removed && off != nil {
				off()
			}
		})
	}
}

// close stops accepting events, delivers what is queued to function
// subscribers and waits. Channel subscriptions end at once so a reader that
// stopped reading cannot hold up shutdown.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	subs := append([]subscriber(nil), d.subs...)
	d.cond.Broadcast()
	d.mu.Unlock()

	for _, s := range subs {
		if s.off != nil {
			s.off()
		}
	}
	<-d.done
}

// channelSink adapts a channel to a subscriber. Sends block until the reader
// receives or the subscription is cancelled.
type channelSink struct {
	mu     sync.Mutex
	ch     chan Event
	stop   chan struct{}
	once   sync.Once
	closed bool
}

func newChannelSink(buffer int) *channelSink {
	return &channelSink{ch: make(chan Event, buffer), stop: make(chan struct{})}
}

func (c *channelSink) send(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- ev:
	case <-c.stop:
	}
}

func (c *channelSink) shutdown() {
	c.once.Do(func() {
		close(c.stop)
		c.mu.Lock()
		c.closed = true
		close(c.ch)
		c.mu.Unlock()
	})
}
