// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package upkcore

import (
	"errors"
	"testing"
)

func TestObjectIndexRoundTrip(t *testing.T) {
	for k := 0; k < 16; k++ {
		exp := FromExport(k)
		if exp.Tag() != TagExport {
			t.Fatalf("FromExport(%d).Tag() = %v, want Export", k, exp.Tag())
		}
		got, err := exp.AsExport()
		if err != nil {
			t.Fatalf("AsExport: %v", err)
		}
		if got != k {
			t.Fatalf("AsExport(FromExport(%d)) = %d", k, got)
		}

		imp := FromImport(k)
		if imp.Tag() != TagImport {
			t.Fatalf("FromImport(%d).Tag() = %v, want Import", k, imp.Tag())
		}
		got, err = imp.AsImport()
		if err != nil {
			t.Fatalf("AsImport: %v", err)
		}
		if got != k {
			t.Fatalf("AsImport(FromImport(%d)) = %d", k, got)
		}
	}
}

func TestObjectIndexNull(t *testing.T) {
	if NullIndex.Tag() != TagNull {
		t.Fatalf("NullIndex.Tag() = %v, want Null", NullIndex.Tag())
	}
	if !NullIndex.IsNull() {
		t.Fatalf("NullIndex.IsNull() = false")
	}
}

func TestObjectIndexEncodingExamples(t *testing.T) {
	cases := []struct {
		got  ObjectIndex
		want ObjectIndex
	}{
		{FromExport(0), 1},
		{FromExport(7), 8},
		{FromImport(0), -1},
		{FromImport(7), -8},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Fatalf("got %d, want %d", c.got, c.want)
		}
	}
	if ObjectIndex(0).Tag() != TagNull {
		t.Fatalf("tag(0) != Null")
	}
	if ObjectIndex(-1).Tag() != TagImport {
		t.Fatalf("tag(-1) != Import")
	}
	if ObjectIndex(1).Tag() != TagExport {
		t.Fatalf("tag(1) != Export")
	}
}

func TestObjectIndexWrongTag(t *testing.T) {
	if _, err := FromExport(0).AsImport(); !errors.Is(err, ErrWrongIndexTag) {
		t.Fatalf("AsImport on export index: got %v, want ErrWrongIndexTag", err)
	}
	if _, err := FromImport(0).AsExport(); !errors.Is(err, ErrWrongIndexTag) {
		t.Fatalf("AsExport on import index: got %v, want ErrWrongIndexTag", err)
	}
}
