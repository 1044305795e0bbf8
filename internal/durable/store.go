/*
LICENSE
  Copyright (C) 2026 the Clipforge authors

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

// Package durable abstracts the persistent key-value store collaborator
// described in the external interfaces section: a handful of named tables,
// some single-valued, some set-valued with UNIQUE ON CONFLICT REPLACE
// semantics on the (keys..., member) tuple.
//
// CompositeStore routes each named table to the right backing TableStore,
// so a deployment can mix backends (a relational store for the set-valued
// tables, say, with everything else in one place).
package durable

import (
	"context"
	"fmt"
	"sync"

	"github.com/clipforge/clipforge/internal/clipsvc"
)

// Key identifies a record within a table: the table's declared key parts,
// already stringified by the caller (e.g. a stream unique_id tuple becomes
// its string form, a guild ID becomes its decimal string).
type Key []string

// String joins the key parts for use as a map key or log field.
func (k Key) String() string {
	s := ""
	for i, p := range k {
		if i > 0 {
			s += "\x1f"
		}
		s += p
	}
	return s
}

// TableStore is the per-table storage contract. A single-valued table uses
// Get/Put/Delete. A set-valued table (registers, captured_streams,
// blocked_streams) uses AddMember/Members/RemoveMember, where member
// equality determines replacement, matching "UNIQUE ON CONFLICT REPLACE".
type TableStore interface {
	Get(ctx context.Context, key Key) ([]byte, error)
	Put(ctx context.Context, key Key, value []byte) error
	Delete(ctx context.Context, key Key) error

	AddMember(ctx context.Context, key Key, member []byte) error
	Members(ctx context.Context, key Key) ([][]byte, error)
	RemoveMember(ctx context.Context, key Key, member []byte) error
}

// Store is the full collaborator interface used by the rest of the core: a
// TableStore addressed by table name.
type Store interface {
	Table(name string) TableStore
}

// Well-known table names, matching the external interface's table list.
const (
	TableAllStreams      = "all_streams"
	TableRegisters       = "registers"
	TableCapturedStreams = "captured_streams"
	TableSentClips       = "sent_clips"
	TableSentScreenshots = "sent_screenshots"
	TableBlockedStreams  = "blocked_streams"
	TableLinkPerms       = "link_perms"
	TableRedirects       = "redirects"
)

// CompositeStore routes each table name to a backing TableStore, falling
// back to a default store for any table without an explicit entry. This
// lets callers back "small, hot" tables (redirects, link_perms) with one
// implementation and "large, cold" tables (all_streams) with another
// without the rest of the core caring which is which.
type CompositeStore struct {
	tables  map[string]TableStore
	fallback TableStore
}

// NewCompositeStore returns a CompositeStore that delegates table by table,
// using fallback for any table name not present in tables.
func NewCompositeStore(tables map[string]TableStore, fallback TableStore) *CompositeStore {
	return &CompositeStore{tables: tables, fallback: fallback}
}

// Table implements Store by looking up the named table, or returning the
// fallback store if no specific entry was registered for it.
func (s *CompositeStore) Table(name string) TableStore {
	if t, ok := s.tables[name]; ok {
		return t
	}
	return s.fallback
}

// memTable is an in-process TableStore backed by maps, guarded by a mutex.
// It is the store used by tests and by the single-process default
// configuration; a durable deployment swaps in a TableStore backed by a
// real database behind the same interface.
type memTable struct {
	mu      sync.RWMutex
	values  map[string][]byte
	members map[string]map[string][]byte // key string -> member string -> member bytes
}

// NewMemStore returns a fresh in-memory TableStore.
func NewMemStore() TableStore {
	return &memTable{
		values:  make(map[string][]byte),
		members: make(map[string]map[string][]byte),
	}
}

func (t *memTable) Get(ctx context.Context, key Key) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[key.String()]
	if !ok {
		return nil, fmt.Errorf("durable: get %q: %w", key, clipsvc.ErrNotFound)
	}
	return v, nil
}

func (t *memTable) Put(ctx context.Context, key Key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[key.String()] = value
	return nil
}

func (t *memTable) Delete(ctx context.Context, key Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.values, key.String())
	return nil
}

func (t *memTable) AddMember(ctx context.Context, key Key, member []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ks := key.String()
	set, ok := t.members[ks]
	if !ok {
		set = make(map[string][]byte)
		t.members[ks] = set
	}
	set[string(member)] = member
	return nil
}

func (t *memTable) Members(ctx context.Context, key Key) ([][]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.members[key.String()]
	out := make([][]byte, 0, len(set))
	for _, v := range set {
		out = append(out, v)
	}
	return out, nil
}

func (t *memTable) RemoveMember(ctx context.Context, key Key, member []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.members[key.String()]
	if set != nil {
		delete(set, string(member))
	}
	return nil
}
