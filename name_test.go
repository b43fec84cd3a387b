// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package upkcore

import (
	"errors"
	"testing"
)

func TestNameTableInternIdempotent(t *testing.T) {
	table := NewNameTable()
	a := table.Intern("Foo")
	b := table.Intern("Foo")
	if a != b {
		t.Fatalf("Intern(Foo) twice gave %v and %v", a, b)
	}
	if table.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", table.Len())
	}
	c := table.Intern("Bar")
	if c.NameID == a.NameID {
		t.Fatalf("Intern(Bar) collided with Intern(Foo)")
	}
}

func TestNameTableResolveInstanceSuffix(t *testing.T) {
	table := NewNameTable()
	base := table.Intern("Material")
	plain, err := table.Resolve(base)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plain != "Material" {
		t.Fatalf("Resolve(instance 0) = %q, want %q", plain, "Material")
	}

	suffixed, err := table.Resolve(FName{NameID: base.NameID, Instance: 3})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if suffixed != "Material_3" {
		t.Fatalf("Resolve(instance 3) = %q, want %q", suffixed, "Material_3")
	}
}

func TestNameTableLookupOutOfRange(t *testing.T) {
	table := NewNameTable()
	table.Intern("Foo")
	if _, err := table.Lookup(5); !errors.Is(err, ErrBadNameReference) {
		t.Fatalf("Lookup(5): got %v, want ErrBadNameReference", err)
	}
	if _, err := table.Lookup(-1); !errors.Is(err, ErrBadNameReference) {
		t.Fatalf("Lookup(-1): got %v, want ErrBadNameReference", err)
	}
}

func TestFNameIsNone(t *testing.T) {
	table := NewNameTable()
	none := table.Intern(NoneName)
	foo := table.Intern("Foo")

	if !none.IsNone(table) {
		t.Fatalf("IsNone(None) = false")
	}
	if foo.IsNone(table) {
		t.Fatalf("IsNone(Foo) = true")
	}
	if (FName{NameID: none.NameID, Instance: 1}).IsNone(table) {
		t.Fatalf("IsNone(None_1) = true, want false")
	}
}
