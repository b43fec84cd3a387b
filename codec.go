// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package upkcore

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
)

// RowCodec decodes and encodes one table row of type T. Per-row byte layout
// is explicitly out of scope for the core (spec.md §1); RowCodec is the
// seam the core consumes it through. DefaultCodecs below is a reference
// implementation sufficient to round-trip the file layout in spec.md §6 —
// a complete repo cannot leave this entirely unimplemented, but nothing in
// the core depends on this particular wire format over another.
type RowCodec[T any] interface {
	Decode(r io.Reader) (T, error)
	Encode(w io.Writer, v T) error
}

// ObjectCodecRegistry looks up a per-class body serializer by class name,
// the way the source engine resolves a serializer by walking a class's
// super chain to the most specific registered implementation. The core
// never interprets object bodies itself; it only asks the registry to do
// so at the offsets the export table records.
type ObjectCodecRegistry interface {
	// BodyCodec returns the serializer registered for className, or the
	// registry's default/catch-all serializer if none is registered.
	BodyCodec(className string) ObjectBodyCodec
}

// ObjectBodyCodec decodes and re-encodes one object's serialized body.
// Decode receives the object's raw byte range; Encode is handed an
// ObjectIndex/FName remapper so that references embedded in a body are
// rewritten to the exporter's new tables (spec.md §4.H write-phase step 8).
type ObjectBodyCodec interface {
	Decode(raw []byte, ctx *ObjectCodecContext) (any, error)
	Encode(w io.Writer, obj any, ctx *ObjectCodecContext) error
}

// ObjectCodecContext is threaded through body (de)serialization so a
// per-class codec can resolve/remap names and object references without
// knowing which container or exporter it is running under.
type ObjectCodecContext struct {
	Names *NameTable
	// Remap translates an ObjectIndex from the source container's table
	// space into the exporter's new table space. Nil during a plain load.
	Remap func(ObjectIndex) ObjectIndex
}

// errors surfaced by the reference binary codecs.
var (
	ErrMalformedHeader       = errors.New("upkcore: malformed container header")
	ErrTruncatedTable        = errors.New("upkcore: truncated table")
	ErrBadNameReference      = errors.New("upkcore: bad name reference")
	ErrObjectNotMaterialized = errors.New("upkcore: object not materialized")
)

// DefaultObjectCodecRegistry decodes every object body as an opaque byte
// slice and writes it back unchanged. It is the zero-configuration registry
// Container falls back to; real callers supply their own per-class bodies
// via WithObjectCodecs.
type DefaultObjectCodecRegistry struct{}

// BodyCodec implements ObjectCodecRegistry.
func (DefaultObjectCodecRegistry) BodyCodec(className string) ObjectBodyCodec {
	return rawBodyCodec{}
}

type rawBodyCodec struct{}

func (rawBodyCodec) Decode(raw []byte, _ *ObjectCodecContext) (any, error) {
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (rawBodyCodec) Encode(w io.Writer, obj any, _ *ObjectCodecContext) error {
	raw, ok := obj.([]byte)
	if !ok {
		return fmt.Errorf("rawBodyCodec: expected []byte payload, got %T", obj)
	}
	_, err := w.Write(raw)
	return err
}

// --- reference binary codecs -------------------------------------------------

// objectIndexCodec encodes/decodes a single little-endian signed int32, the
// §6 "ObjectIndex encoding".
type objectIndexCodec struct{}

func (objectIndexCodec) Decode(r io.Reader) (ObjectIndex, error) {
	var v int32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, fmt.Errorf("%w: object index: %v", ErrTruncatedTable, err)
	}
	return ObjectIndex(v), nil
}

func (objectIndexCodec) Encode(w io.Writer, v ObjectIndex) error {
	return binary.Write(w, binary.LittleEndian, int32(v))
}

// fnameCodec encodes/decodes an FName as two little-endian int32s.
type fnameCodec struct{}

func (fnameCodec) Decode(r io.Reader) (FName, error) {
	var raw [2]int32
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return FName{}, fmt.Errorf("%w: fname: %v", ErrTruncatedTable, err)
	}
	return FName{NameID: raw[0], Instance: raw[1]}, nil
}

func (fnameCodec) Encode(w io.Writer, v FName) error {
	return binary.Write(w, binary.LittleEndian, [2]int32{v.NameID, v.Instance})
}

// NameEntryCodec decodes/encodes a name-table row: a sign-prefixed length
// string (positive = ASCII, negative = UTF-16LE with trailing NUL, the same
// convention the source engine uses) followed by a 64-bit flags word.
// Decode accepts both forms; Encode always writes the positive-count form,
// with the string's bytes as-is plus a trailing NUL.
type NameEntryCodec struct{}

func (NameEntryCodec) Decode(r io.Reader) (NameEntry, error) {
	var count int32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return NameEntry{}, fmt.Errorf("%w: name length: %v", ErrTruncatedTable, err)
	}
	var s string
	var err error
	if count >= 0 {
		s, err = readASCIIZ(r, int(count))
	} else {
		s, err = readUTF16Z(r, int(-count))
	}
	if err != nil {
		return NameEntry{}, fmt.Errorf("%w: name string: %v", ErrTruncatedTable, err)
	}
	var flags uint64
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return NameEntry{}, fmt.Errorf("%w: name flags: %v", ErrTruncatedTable, err)
	}
	return NameEntry{Value: s, Flags: flags}, nil
}

func (NameEntryCodec) Encode(w io.Writer, v NameEntry) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(v.Value)+1)); err != nil {
		return err
	}
	if _, err := io.WriteString(w, v.Value); err != nil {
		return err
	}
	if _, err := w.Write([]byte{0}); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, v.Flags)
}

func readASCIIZ(r io.Reader, count int) (string, error) {
	if count <= 0 {
		return "", nil
	}
	buf := make([]byte, count)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	if n := len(buf); n > 0 && buf[n-1] == 0 {
		buf = buf[:n-1]
	}
	return string(buf), nil
}

func readUTF16Z(r io.Reader, count int) (string, error) {
	if count <= 0 {
		return "", nil
	}
	buf := make([]byte, count*2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	decoded, err := decoder.Bytes(buf)
	if err != nil {
		return "", err
	}
	s := string(decoded)
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return s, nil
}

// ImportRowCodec decodes/encodes one import-table row: 3 FName-encoded
// fields (ClassPackage, ClassName, ObjectName) with the Outer ObjectIndex
// between ClassName and ObjectName, per §6 item 3.
type ImportRowCodec struct{}

func (ImportRowCodec) Decode(r io.Reader) (ImportRow, error) {
	var row ImportRow
	var err error
	if row.ClassPackage, err = (fnameCodec{}).Decode(r); err != nil {
		return row, err
	}
	if row.ClassName, err = (fnameCodec{}).Decode(r); err != nil {
		return row, err
	}
	if row.Outer, err = (objectIndexCodec{}).Decode(r); err != nil {
		return row, err
	}
	if row.ObjectName, err = (fnameCodec{}).Decode(r); err != nil {
		return row, err
	}
	return row, nil
}

func (ImportRowCodec) Encode(w io.Writer, v ImportRow) error {
	for _, step := range []func() error{
		func() error { return (fnameCodec{}).Encode(w, v.ClassPackage) },
		func() error { return (fnameCodec{}).Encode(w, v.ClassName) },
		func() error { return (objectIndexCodec{}).Encode(w, v.Outer) },
		func() error { return (fnameCodec{}).Encode(w, v.ObjectName) },
	} {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// ExportRowCodec decodes/encodes one export-table row per spec.md §3's
// ExportRow field list, fixed-width little-endian.
type ExportRowCodec struct{}

type exportRowWire struct {
	ObjectFlags    uint64
	SerialSize     int32
	SerialOffset   int32
	ExportFlags    uint32
	NetObjectCount int32
	GUID           FGuid
	PackageFlags   uint32
}

func (ExportRowCodec) Decode(r io.Reader) (ExportRow, error) {
	var row ExportRow
	var err error
	if row.ClassRef, err = (objectIndexCodec{}).Decode(r); err != nil {
		return row, err
	}
	if row.SuperRef, err = (objectIndexCodec{}).Decode(r); err != nil {
		return row, err
	}
	if row.OuterRef, err = (objectIndexCodec{}).Decode(r); err != nil {
		return row, err
	}
	if row.ObjectName, err = (fnameCodec{}).Decode(r); err != nil {
		return row, err
	}
	if row.ArchetypeRef, err = (objectIndexCodec{}).Decode(r); err != nil {
		return row, err
	}
	var wire exportRowWire
	if err := binary.Read(r, binary.LittleEndian, &wire); err != nil {
		return row, fmt.Errorf("%w: export row tail: %v", ErrTruncatedTable, err)
	}
	row.ObjectFlags = wire.ObjectFlags
	row.SerialSize = wire.SerialSize
	row.SerialOffset = wire.SerialOffset
	row.ExportFlags = wire.ExportFlags
	row.NetObjectCount = wire.NetObjectCount
	row.GUID = wire.GUID
	row.PackageFlags = wire.PackageFlags
	return row, nil
}

func (ExportRowCodec) Encode(w io.Writer, v ExportRow) error {
	for _, step := range []func() error{
		func() error { return (objectIndexCodec{}).Encode(w, v.ClassRef) },
		func() error { return (objectIndexCodec{}).Encode(w, v.SuperRef) },
		func() error { return (objectIndexCodec{}).Encode(w, v.OuterRef) },
		func() error { return (fnameCodec{}).Encode(w, v.ObjectName) },
		func() error { return (objectIndexCodec{}).Encode(w, v.ArchetypeRef) },
	} {
		if err := step(); err != nil {
			return err
		}
	}
	wire := exportRowWire{
		ObjectFlags:    v.ObjectFlags,
		SerialSize:     v.SerialSize,
		SerialOffset:   v.SerialOffset,
		ExportFlags:    v.ExportFlags,
		NetObjectCount: v.NetObjectCount,
		GUID:           v.GUID,
		PackageFlags:   v.PackageFlags,
	}
	return binary.Write(w, binary.LittleEndian, wire)
}

// FileSummaryCodec decodes/encodes the container header, §6 item 1.
type FileSummaryCodec struct{}

func (FileSummaryCodec) Decode(r io.Reader) (FileSummary, error) {
	br := bufio.NewReader(r)
	var h FileSummary
	var fixed struct {
		Magic           uint32
		FileVersion     uint32
		LicenseeVersion uint32
	}
	if err := binary.Read(br, binary.LittleEndian, &fixed); err != nil {
		return h, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	h.Magic, h.FileVersion, h.LicenseeVersion = fixed.Magic, fixed.FileVersion, fixed.LicenseeVersion
	name, err := readLengthPrefixedString(br)
	if err != nil {
		return h, fmt.Errorf("%w: package name: %v", ErrMalformedHeader, err)
	}
	h.PackageName = name

	var tail struct {
		TotalHeaderSize      int32
		PackageFlags         uint32
		NameCount            int32
		NameOffset           int32
		ExportCount          int32
		ExportOffset         int32
		ImportCount          int32
		ImportOffset         int32
		DependsOffset        int32
		ThumbnailTableOffset int32
		EngineVersion        uint32
		CookerVersion        uint32
	}
	if err := binary.Read(br, binary.LittleEndian, &tail); err != nil {
		return h, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	h.TotalHeaderSize = tail.TotalHeaderSize
	h.PackageFlags = tail.PackageFlags
	h.NameCount = tail.NameCount
	h.NameOffset = tail.NameOffset
	h.ExportCount = tail.ExportCount
	h.ExportOffset = tail.ExportOffset
	h.ImportCount = tail.ImportCount
	h.ImportOffset = tail.ImportOffset
	h.DependsOffset = tail.DependsOffset
	h.ThumbnailTableOffset = tail.ThumbnailTableOffset
	h.EngineVersion = tail.EngineVersion
	h.CookerVersion = tail.CookerVersion

	pkgCount, err := readInt32(br)
	if err != nil {
		return h, fmt.Errorf("%w: additional packages count: %v", ErrMalformedHeader, err)
	}
	for i := int32(0); i < pkgCount; i++ {
		s, err := readLengthPrefixedString(br)
		if err != nil {
			return h, fmt.Errorf("%w: additional package %d: %v", ErrMalformedHeader, i, err)
		}
		h.AdditionalPackagesToCook = append(h.AdditionalPackagesToCook, s)
	}

	allocLen, err := readInt32(br)
	if err != nil {
		return h, fmt.Errorf("%w: texture allocations length: %v", ErrMalformedHeader, err)
	}
	if allocLen > 0 {
		buf := make([]byte, allocLen)
		if _, err := io.ReadFull(br, buf); err != nil {
			return h, fmt.Errorf("%w: texture allocations: %v", ErrMalformedHeader, err)
		}
		h.TextureAllocations = buf
	}
	return h, nil
}

func (FileSummaryCodec) Encode(w io.Writer, h FileSummary) error {
	if err := binary.Write(w, binary.LittleEndian, struct {
		Magic           uint32
		FileVersion     uint32
		LicenseeVersion uint32
	}{h.Magic, h.FileVersion, h.LicenseeVersion}); err != nil {
		return err
	}
	if err := writeLengthPrefixedString(w, h.PackageName); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, struct {
		TotalHeaderSize      int32
		PackageFlags         uint32
		NameCount            int32
		NameOffset           int32
		ExportCount          int32
		ExportOffset         int32
		ImportCount          int32
		ImportOffset         int32
		DependsOffset        int32
		ThumbnailTableOffset int32
		EngineVersion        uint32
		CookerVersion        uint32
	}{
		h.TotalHeaderSize, h.PackageFlags, h.NameCount, h.NameOffset,
		h.ExportCount, h.ExportOffset, h.ImportCount, h.ImportOffset,
		h.DependsOffset, h.ThumbnailTableOffset, h.EngineVersion, h.CookerVersion,
	}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(h.AdditionalPackagesToCook))); err != nil {
		return err
	}
	for _, s := range h.AdditionalPackagesToCook {
		if err := writeLengthPrefixedString(w, s); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(h.TextureAllocations))); err != nil {
		return err
	}
	if len(h.TextureAllocations) > 0 {
		if _, err := w.Write(h.TextureAllocations); err != nil {
			return err
		}
	}
	return nil
}

func readInt32(r io.Reader) (int32, error) {
	var v int32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readLengthPrefixedString(r io.Reader) (string, error) {
	n, err := readInt32(r)
	if err != nil {
		return "", err
	}
	if n <= 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	if buf[n-1] == 0 {
		buf = buf[:n-1]
	}
	return string(buf), nil
}

func writeLengthPrefixedString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(s)+1)); err != nil {
		return err
	}
	if _, err := io.WriteString(w, s); err != nil {
		return err
	}
	_, err := w.Write([]byte{0})
	return err
}
