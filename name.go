// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package upkcore

import "fmt"

// NoneName is the distinguished sentinel used for empty rows.
const NoneName = "None"

// FName is an interned-string reference plus an instance number, the way
// the container format disambiguates repeated names ("Foo", "Foo_1", ...)
// without paying for a new string each time.
type FName struct {
	NameID   int32
	Instance int32
}

// IsNone reports whether fn, resolved against table, names the sentinel
// "None" with no instance suffix.
func (fn FName) IsNone(table *NameTable) bool {
	if fn.Instance != 0 {
		return false
	}
	s, err := table.Lookup(fn.NameID)
	if err != nil {
		return false
	}
	return s == NoneName
}

// NameEntry is one row of a NameTable: a string plus a flags word carried
// through verbatim by the core (it never interprets the flags).
type NameEntry struct {
	Value string
	Flags uint64
}

// NameTable is the container's ordered, append-only string pool. Names are
// never removed during a session; export builds a fresh NameTable by
// copying the source container's rows, in order, with AppendRaw.
type NameTable struct {
	entries []NameEntry
	index   map[string]int32
}

// NewNameTable returns an empty NameTable ready for Intern/GetOrAdd.
func NewNameTable() *NameTable {
	return &NameTable{index: make(map[string]int32)}
}

// Len returns the number of rows in the table.
func (t *NameTable) Len() int {
	return len(t.entries)
}

// Entries returns the table's rows in order. Callers must not mutate the
// returned slice.
func (t *NameTable) Entries() []NameEntry {
	return t.entries
}

// AppendRaw appends a decoded row verbatim, used while decoding a container
// from a stream (rows may already carry non-zero flags from the file).
func (t *NameTable) AppendRaw(entry NameEntry) int32 {
	id := int32(len(t.entries))
	t.entries = append(t.entries, entry)
	if _, ok := t.index[entry.Value]; !ok {
		t.index[entry.Value] = id
	}
	return id
}

// Intern returns the FName for s, appending a new row with instance 0 if s
// is not already present. Intern is idempotent: calling it twice with the
// same string returns the same name id.
func (t *NameTable) Intern(s string) FName {
	if id, ok := t.index[s]; ok {
		return FName{NameID: id}
	}
	id := t.AppendRaw(NameEntry{Value: s})
	return FName{NameID: id}
}

// GetOrAdd is an alias for Intern, named to match spec.md §4.B's public
// contract verbatim.
func (t *NameTable) GetOrAdd(s string) FName {
	return t.Intern(s)
}

// Lookup resolves a name id to its string. It is total on valid ids and
// returns ErrBadNameReference otherwise.
func (t *NameTable) Lookup(nameID int32) (string, error) {
	if nameID < 0 || int(nameID) >= len(t.entries) {
		return "", fmt.Errorf("%w: name id %d", ErrBadNameReference, nameID)
	}
	return t.entries[nameID].Value, nil
}

// Resolve returns the display string for fn: its base name, with "_N"
// appended when Instance is non-zero (instance 0 has no suffix, matching
// the source engine's convention).
func (t *NameTable) Resolve(fn FName) (string, error) {
	base, err := t.Lookup(fn.NameID)
	if err != nil {
		return "", err
	}
	if fn.Instance == 0 {
		return base, nil
	}
	return fmt.Sprintf("%s_%d", base, fn.Instance), nil
}
