// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package upkcore

// FGuid is a 128-bit object identifier, carried through verbatim by the
// core (it never interprets the words beyond equality).
type FGuid struct {
	A, B, C, D uint32
}

// ImportRow is one entry in a container's import table: a reference to an
// object defined in some other container (or, for native classes, nowhere
// at all — see Container.IsNative).
type ImportRow struct {
	ClassPackage FName
	ClassName    FName
	Outer        ObjectIndex
	ObjectName   FName
}

// ObjectFlags values the exporter assigns to export rows per spec.md §4.H
// step 6.
const (
	flagsUPackage       uint64 = 0x0007_0004_0000_0000
	flagsResourceObject uint64 = 0x000F_0004_0000_0000
	flagsDefaultObject  uint64 = 0x000F_0004_0000_0400
)

// ExportRow is one entry in a container's export table: an object this
// container itself defines and materializes.
type ExportRow struct {
	ClassRef       ObjectIndex
	SuperRef       ObjectIndex
	OuterRef       ObjectIndex
	ObjectName     FName
	ArchetypeRef   ObjectIndex
	ObjectFlags    uint64
	SerialSize     int32
	SerialOffset   int32
	ExportFlags    uint32
	NetObjectCount int32
	GUID           FGuid
	PackageFlags   uint32
}

// FileSummary is the container header, §6 item 1. additional_packages_to_cook
// and texture_allocations are carried through verbatim; the core never reads
// their contents, only their byte length for layout purposes.
type FileSummary struct {
	Magic                    uint32
	FileVersion              uint32
	LicenseeVersion          uint32
	PackageName              string
	TotalHeaderSize          int32
	PackageFlags             uint32
	NameCount                int32
	NameOffset               int32
	ExportCount              int32
	ExportOffset             int32
	ImportCount              int32
	ImportOffset             int32
	DependsOffset            int32
	ThumbnailTableOffset     int32
	EngineVersion            uint32
	CookerVersion            uint32
	AdditionalPackagesToCook []string
	TextureAllocations       []byte
}
