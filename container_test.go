// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package upkcore

import (
	"errors"
	"testing"
)

func TestDecodeContainerMinimal(t *testing.T) {
	names := NewNameTable()
	pkgName := names.Intern("MyPackage")

	exports := []ExportRow{
		{ObjectName: pkgName, ClassRef: NullIndex, OuterRef: NullIndex},
	}
	data := buildContainer(t, names, nil, exports, [][]byte{[]byte("body")})

	c, err := DecodeContainer(data, "MyPackage")
	if err != nil {
		t.Fatalf("DecodeContainer: %v", err)
	}
	defer c.Close()

	if c.Name() != "MyPackage" {
		t.Fatalf("Name() = %q", c.Name())
	}
	if len(c.Exports()) != 1 {
		t.Fatalf("Exports() has %d rows, want 1", len(c.Exports()))
	}

	full, err := c.GetFullName(FromExport(0))
	if err != nil {
		t.Fatalf("GetFullName: %v", err)
	}
	if full != "MyPackage" {
		t.Fatalf("GetFullName = %q, want %q", full, "MyPackage")
	}
}

func TestContainerGetFullNameJoinsOuterChain(t *testing.T) {
	names := NewNameTable()
	pkgName := names.Intern("MyPackage")
	childName := names.Intern("Child")

	exports := []ExportRow{
		{ObjectName: childName, ClassRef: NullIndex, OuterRef: FromExport(1)},
		{ObjectName: pkgName, ClassRef: NullIndex, OuterRef: NullIndex},
	}
	data := buildContainer(t, names, nil, exports, [][]byte{{}, {}})

	c, err := DecodeContainer(data, "MyPackage")
	if err != nil {
		t.Fatalf("DecodeContainer: %v", err)
	}

	full, err := c.GetFullName(FromExport(0))
	if err != nil {
		t.Fatalf("GetFullName: %v", err)
	}
	if full != "MyPackage.Child" {
		t.Fatalf("GetFullName = %q, want %q", full, "MyPackage.Child")
	}
}

func TestContainerGetRowOutOfRange(t *testing.T) {
	c, err := DecodeContainer(buildContainer(t, NewNameTable(), nil, nil, nil), "Empty")
	if err != nil {
		t.Fatalf("DecodeContainer: %v", err)
	}
	if _, err := c.GetRow(FromExport(0)); !errors.Is(err, ErrBadNameReference) {
		t.Fatalf("GetRow out of range: got %v, want ErrBadNameReference", err)
	}
}

func TestContainerCreateObjectExportMaterializesOnce(t *testing.T) {
	names := NewNameTable()
	pkgName := names.Intern("MyPackage")

	exports := []ExportRow{
		{ObjectName: pkgName, ClassRef: NullIndex, OuterRef: NullIndex},
	}
	data := buildContainer(t, names, nil, exports, [][]byte{[]byte("payload")})
	c, err := DecodeContainer(data, "MyPackage")
	if err != nil {
		t.Fatalf("DecodeContainer: %v", err)
	}

	idx := FromExport(0)
	if c.IsMaterialized(idx) {
		t.Fatalf("IsMaterialized before CreateObject = true")
	}
	obj1, err := c.CreateObject(idx)
	if err != nil {
		t.Fatalf("CreateObject: %v", err)
	}
	if !c.IsMaterialized(idx) {
		t.Fatalf("IsMaterialized after CreateObject = false")
	}
	obj2, err := c.CreateObject(idx)
	if err != nil {
		t.Fatalf("CreateObject (second call): %v", err)
	}
	if obj1 != obj2 {
		t.Fatalf("CreateObject returned different objects across calls")
	}
	if obj1.ClassName() != "Class" {
		t.Fatalf("ClassName() = %q, want %q", obj1.ClassName(), "Class")
	}
	if string(obj1.Payload().([]byte)) != "payload" {
		t.Fatalf("Payload() = %v, want %q", obj1.Payload(), "payload")
	}
}

func TestContainerCreateObjectImportIsPlaceholder(t *testing.T) {
	names := NewNameTable()
	classPkg := names.Intern("Core")
	className := names.Intern("Class")
	objName := names.Intern("SomeNativeClass")

	imports := []ImportRow{
		{ClassPackage: classPkg, ClassName: className, Outer: NullIndex, ObjectName: objName},
	}
	data := buildContainer(t, names, imports, nil, nil)
	c, err := DecodeContainer(data, "MyPackage")
	if err != nil {
		t.Fatalf("DecodeContainer: %v", err)
	}

	idx := FromImport(0)
	obj, err := c.CreateObject(idx)
	if err != nil {
		t.Fatalf("CreateObject: %v", err)
	}
	if _, ok := obj.(*DefaultObject); !ok {
		t.Fatalf("CreateObject(import) = %T, want *DefaultObject", obj)
	}
	if obj.Payload() != nil {
		t.Fatalf("import placeholder Payload() = %v, want nil", obj.Payload())
	}
}

func TestContainerFindClassRequiresPreRegistration(t *testing.T) {
	data := buildContainer(t, NewNameTable(), nil, nil, nil)
	c, err := DecodeContainer(data, "MyPackage", WithNativeClasses("Object", "Class"))
	if err != nil {
		t.Fatalf("DecodeContainer: %v", err)
	}
	if _, ok := c.FindClass("Object"); !ok {
		t.Fatalf("FindClass(Object) not found after WithNativeClasses")
	}
	if _, ok := c.FindClass("Unregistered"); ok {
		t.Fatalf("FindClass(Unregistered) found, want absent")
	}
}

func TestContainerIsNative(t *testing.T) {
	names := NewNameTable()
	classPkg := names.Intern("Core")
	className := names.Intern("Class")
	pkgSelf := names.Intern("MyPackage")
	objName := names.Intern("SomeNativeClass")

	topImport := ImportRow{ClassPackage: classPkg, ClassName: className, Outer: NullIndex, ObjectName: pkgSelf}
	childImport := ImportRow{ClassPackage: classPkg, ClassName: className, Outer: FromImport(0), ObjectName: objName}
	data := buildContainer(t, names, []ImportRow{topImport, childImport}, nil, nil)

	c, err := DecodeContainer(data, "MyPackage")
	if err != nil {
		t.Fatalf("DecodeContainer: %v", err)
	}
	native, err := c.IsNative(childImport)
	if err != nil {
		t.Fatalf("IsNative: %v", err)
	}
	if !native {
		t.Fatalf("IsNative(childImport) = false, want true (top-level import names this container)")
	}
}

func TestDecodeContainerBadNameReferenceFails(t *testing.T) {
	names := NewNameTable()
	valid := names.Intern("Foo")
	data := buildContainer(t, names, nil, []ExportRow{
		{ObjectName: FName{NameID: valid.NameID + 50}},
	}, [][]byte{{}})

	if _, err := DecodeContainer(data, "Pkg"); !errors.Is(err, ErrBadNameReference) {
		t.Fatalf("DecodeContainer with bad name id: got %v, want ErrBadNameReference", err)
	}
}
