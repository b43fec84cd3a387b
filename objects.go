// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package upkcore

// Object is the capability set spec.md §3 requires of every materialized
// object, regardless of which concrete variant it is. Per-class payloads
// decoded by an ObjectCodecRegistry are reachable through Payload(), opaque
// to the core.
type Object interface {
	OwningContainer() *Container
	SelfIndex() ObjectIndex
	Outer() ObjectIndex
	Class() ObjectIndex
	Archetype() ObjectIndex
	ObjectFlags() uint64
	FullName() string
	ClassName() string
	Payload() any
}

// baseObject implements Object and is embedded by every concrete variant.
type baseObject struct {
	container *Container
	self      ObjectIndex
	outer     ObjectIndex
	class     ObjectIndex
	archetype ObjectIndex
	flags     uint64
	fullName  string
	className string
	payload   any
}

func (o *baseObject) OwningContainer() *Container { return o.container }
func (o *baseObject) SelfIndex() ObjectIndex       { return o.self }
func (o *baseObject) Outer() ObjectIndex           { return o.outer }
func (o *baseObject) Class() ObjectIndex           { return o.class }
func (o *baseObject) Archetype() ObjectIndex       { return o.archetype }
func (o *baseObject) ObjectFlags() uint64          { return o.flags }
func (o *baseObject) FullName() string             { return o.fullName }
func (o *baseObject) ClassName() string            { return o.className }
func (o *baseObject) Payload() any                 { return o.payload }

// UPackage is the top-level container object variant.
type UPackage struct{ baseObject }

// UClass represents the distinguished "Class" of classes: either a regular
// export row whose ClassRef is null, or a class synthesized natively by a
// container with no table row of its own (Native == true).
type UClass struct {
	baseObject
	Native bool
}

// UMaterial, UTexture, USkeletalMesh, UStaticMesh, and UMaterialInstance are
// the resource-class variants the exporter treats specially in spec.md
// §4.H step 6.
type UMaterial struct{ baseObject }
type UTexture struct{ baseObject }
type USkeletalMesh struct{ baseObject }
type UStaticMesh struct{ baseObject }
type UMaterialInstance struct{ baseObject }

// DefaultObject is the catch-all variant for classes with no dedicated Go
// type, per spec.md §9's "tagged variant plus a catch-all" recommendation.
type DefaultObject struct{ baseObject }

// IsResourceClass reports whether className names one of the resource
// classes the exporter assigns the resource object-flags bucket.
func IsResourceClass(className string) bool {
	switch className {
	case "Material", "SkeletalMesh", "StaticMesh", "Texture", "Texture2D", "MaterialInstance", "MaterialInstanceConstant":
		return true
	default:
		return false
	}
}

// newVariant builds the concrete Object for className, dispatching to the
// known hierarchy and falling back to DefaultObject.
func newVariant(className string, base baseObject) Object {
	switch className {
	case "Package":
		return &UPackage{base}
	case "Class":
		return &UClass{baseObject: base}
	case "Material":
		return &UMaterial{base}
	case "Texture", "Texture2D":
		return &UTexture{base}
	case "SkeletalMesh":
		return &USkeletalMesh{base}
	case "StaticMesh":
		return &UStaticMesh{base}
	case "MaterialInstance", "MaterialInstanceConstant":
		return &UMaterialInstance{base}
	default:
		return &DefaultObject{base}
	}
}
