// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package upkcore

import "errors"

// ErrWrongIndexTag is returned when an ObjectIndex accessor is called
// against the wrong tag, e.g. AsExport on an import index.
var ErrWrongIndexTag = errors.New("upkcore: wrong ObjectIndex tag")

// IndexTag classifies an ObjectIndex.
type IndexTag int

// Tags an ObjectIndex can carry.
const (
	TagNull IndexTag = iota
	TagImport
	TagExport
)

func (t IndexTag) String() string {
	switch t {
	case TagNull:
		return "Null"
	case TagImport:
		return "Import"
	case TagExport:
		return "Export"
	default:
		return "Unknown"
	}
}

// ObjectIndex is the tagged signed-integer reference described in spec.md
// §3/§4.A: 0 is null, positive values (minus one) index the export table,
// negative values (negated, minus one) index the import table. The zero
// value of ObjectIndex is the null reference.
type ObjectIndex int32

// NullIndex is the canonical null ObjectIndex.
const NullIndex ObjectIndex = 0

// FromExport returns the ObjectIndex referencing export row k.
func FromExport(k int) ObjectIndex {
	return ObjectIndex(k + 1)
}

// FromImport returns the ObjectIndex referencing import row k.
func FromImport(k int) ObjectIndex {
	return ObjectIndex(-k - 1)
}

// Tag reports which table, if any, this index refers into.
func (idx ObjectIndex) Tag() IndexTag {
	switch {
	case idx == 0:
		return TagNull
	case idx > 0:
		return TagExport
	default:
		return TagImport
	}
}

// IsNull reports whether idx is the null reference.
func (idx ObjectIndex) IsNull() bool {
	return idx == 0
}

// AsExport returns the zero-based export row index. It is only defined when
// Tag() == TagExport; otherwise it returns ErrWrongIndexTag.
func (idx ObjectIndex) AsExport() (int, error) {
	if idx.Tag() != TagExport {
		return 0, ErrWrongIndexTag
	}
	return int(idx) - 1, nil
}

// AsImport returns the zero-based import row index. It is only defined when
// Tag() == TagImport; otherwise it returns ErrWrongIndexTag.
func (idx ObjectIndex) AsImport() (int, error) {
	if idx.Tag() != TagImport {
		return 0, ErrWrongIndexTag
	}
	return int(-idx) - 1, nil
}

// MustAsExport panics instead of erroring; useful once a caller has already
// checked Tag() itself.
func (idx ObjectIndex) MustAsExport() int {
	i, err := idx.AsExport()
	if err != nil {
		panic(err)
	}
	return i
}

// MustAsImport panics instead of erroring; useful once a caller has already
// checked Tag() itself.
func (idx ObjectIndex) MustAsImport() int {
	i, err := idx.AsImport()
	if err != nil {
		panic(err)
	}
	return i
}
