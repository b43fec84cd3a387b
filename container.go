// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package upkcore resolves a graph of inter-container object references
// into a valid load order, materializes objects along that order, and can
// re-emit a filtered, reindexed subset of a container. It treats per-row
// byte codecs and per-class body serializers as pluggable collaborators
// (see codec.go); it owns the reference algebra, the cross-container
// dependency resolver, and the exporter's two-pass layout.
package upkcore

import (
	"bytes"
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/saferwall/upkcore/internal/log"
)

// Row is the tagged result of Container.GetRow: exactly one of Import or
// Export is set, unless Tag is TagNull.
type Row struct {
	Tag    IndexTag
	Import *ImportRow
	Export *ExportRow
}

// ObjectName returns the row's own (unqualified) name, or the zero FName
// for a null row.
func (r Row) ObjectName() FName {
	switch r.Tag {
	case TagImport:
		return r.Import.ObjectName
	case TagExport:
		return r.Export.ObjectName
	default:
		return FName{}
	}
}

// OuterRef returns the row's outer reference, or the null index for a null
// row.
func (r Row) OuterRef() ObjectIndex {
	switch r.Tag {
	case TagImport:
		return r.Import.Outer
	case TagExport:
		return r.Export.OuterRef
	default:
		return NullIndex
	}
}

// ContainerOption configures Container construction.
type ContainerOption func(*Container)

// WithLogger attaches a diagnostic logger, matching file.go's Options.Logger.
func WithLogger(h *log.Helper) ContainerOption {
	return func(c *Container) { c.logger = h }
}

// WithObjectCodecs supplies the per-class body serializer registry used by
// CreateObject. Without one, CreateObject decodes every body as raw bytes
// via the package's DefaultObjectCodecRegistry.
func WithObjectCodecs(reg ObjectCodecRegistry) ContainerOption {
	return func(c *Container) { c.codecs = reg }
}

// WithNativeClasses pre-registers the native classes this container
// synthesizes with no table row of its own (spec.md §4.C FindClass).
func WithNativeClasses(names ...string) ContainerOption {
	return func(c *Container) {
		for _, n := range names {
			c.registerNativeClass(n)
		}
	}
}

// Container is the in-memory representation of one decoded container:
// header, name table, import table, export table, and any objects
// materialized so far (spec.md §3).
type Container struct {
	name    string
	header  FileSummary
	names   *NameTable
	imports []ImportRow
	exports []ExportRow

	body []byte // the serialized-object-body region, at data[header.TotalHeaderSize:]

	objects map[ObjectIndex]Object
	natives map[string]*UClass

	codecs ObjectCodecRegistry
	logger *log.Helper

	mapped mmap.MMap // non-nil when decoded via DecodeContainerFile
	file   *os.File
}

// DecodeContainer parses header, names, imports, and exports out of data;
// it leaves object bodies unread until CreateObject demands them. It fails
// with ErrMalformedHeader, ErrTruncatedTable, or ErrBadNameReference when a
// structural invariant is violated (spec.md §4.C).
func DecodeContainer(data []byte, name string, opts ...ContainerOption) (*Container, error) {
	c := &Container{
		name:    name,
		names:   NewNameTable(),
		objects: make(map[ObjectIndex]Object),
		natives: make(map[string]*UClass),
		codecs:  DefaultObjectCodecRegistry{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.NewHelper(log.NewFilter(log.NewStdLogger(os.Stdout), log.FilterLevel(log.LevelError)))
	}

	r := bytes.NewReader(data)
	header, err := (FileSummaryCodec{}).Decode(r)
	if err != nil {
		return nil, err
	}
	c.header = header

	if int(header.NameOffset) > len(data) || int(header.ImportOffset) > len(data) ||
		int(header.ExportOffset) > len(data) || int(header.TotalHeaderSize) > len(data) {
		return nil, fmt.Errorf("%w: offsets exceed stream length", ErrMalformedHeader)
	}

	if _, err := r.Seek(int64(header.NameOffset), 0); err != nil {
		return nil, fmt.Errorf("%w: seeking to name table: %v", ErrMalformedHeader, err)
	}
	nameCodec := NameEntryCodec{}
	for i := int32(0); i < header.NameCount; i++ {
		entry, err := nameCodec.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("%w: name row %d: %v", ErrTruncatedTable, i, err)
		}
		c.names.AppendRaw(entry)
	}

	if _, err := r.Seek(int64(header.ImportOffset), 0); err != nil {
		return nil, fmt.Errorf("%w: seeking to import table: %v", ErrMalformedHeader, err)
	}
	importCodec := ImportRowCodec{}
	for i := int32(0); i < header.ImportCount; i++ {
		row, err := importCodec.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("%w: import row %d: %v", ErrTruncatedTable, i, err)
		}
		c.imports = append(c.imports, row)
	}

	if _, err := r.Seek(int64(header.ExportOffset), 0); err != nil {
		return nil, fmt.Errorf("%w: seeking to export table: %v", ErrMalformedHeader, err)
	}
	exportCodec := ExportRowCodec{}
	for i := int32(0); i < header.ExportCount; i++ {
		row, err := exportCodec.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("%w: export row %d: %v", ErrTruncatedTable, i, err)
		}
		c.exports = append(c.exports, row)
	}

	if int(header.TotalHeaderSize) <= len(data) {
		c.body = data[header.TotalHeaderSize:]
	}

	if err := c.validateNameReferences(); err != nil {
		return nil, err
	}
	return c, nil
}

// DecodeContainerFile memory-maps path and decodes it in place, the way
// file.go's New maps a PE instead of reading it fully; Close unmaps it.
func DecodeContainerFile(path, name string, opts ...ContainerOption) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	c, err := DecodeContainer(data, name, opts...)
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, err
	}
	c.mapped = data
	c.file = f
	return c, nil
}

// Close releases the memory mapping backing this container, if any.
func (c *Container) Close() error {
	var err error
	if c.mapped != nil {
		err = c.mapped.Unmap()
		c.mapped = nil
	}
	if c.file != nil {
		if cerr := c.file.Close(); err == nil {
			err = cerr
		}
		c.file = nil
	}
	return err
}

// validateNameReferences checks every FName in every table row points at a
// valid name id, satisfying spec.md's BadNameReference failure mode eagerly
// at decode time rather than lazily at first lookup.
func (c *Container) validateNameReferences() error {
	check := func(fn FName) error {
		_, err := c.names.Lookup(fn.NameID)
		return err
	}
	for i, row := range c.imports {
		for _, fn := range []FName{row.ClassPackage, row.ClassName, row.ObjectName} {
			if err := check(fn); err != nil {
				return fmt.Errorf("import row %d: %w", i, err)
			}
		}
	}
	for i, row := range c.exports {
		if err := check(row.ObjectName); err != nil {
			return fmt.Errorf("export row %d: %w", i, err)
		}
	}
	return nil
}

// Name returns this container's own name, as recorded in the cache it was
// added under.
func (c *Container) Name() string { return c.name }

// Header returns the decoded FileSummary.
func (c *Container) Header() FileSummary { return c.header }

// Names returns the container's name table.
func (c *Container) Names() *NameTable { return c.names }

// Imports returns the import table. Callers must not mutate the slice.
func (c *Container) Imports() []ImportRow { return c.imports }

// Exports returns the export table. Callers must not mutate the slice.
func (c *Container) Exports() []ExportRow { return c.exports }

// GetRow dispatches idx to the import or export table in constant time,
// spec.md §4.C.
func (c *Container) GetRow(idx ObjectIndex) (Row, error) {
	switch idx.Tag() {
	case TagNull:
		return Row{Tag: TagNull}, nil
	case TagExport:
		i, _ := idx.AsExport()
		if i < 0 || i >= len(c.exports) {
			return Row{}, fmt.Errorf("%w: export row %d out of range in %q", ErrBadNameReference, i, c.name)
		}
		return Row{Tag: TagExport, Export: &c.exports[i]}, nil
	default:
		i, _ := idx.AsImport()
		if i < 0 || i >= len(c.imports) {
			return Row{}, fmt.Errorf("%w: import row %d out of range in %q", ErrBadNameReference, i, c.name)
		}
		return Row{Tag: TagImport, Import: &c.imports[i]}, nil
	}
}

// GetFullName joins idx's name with the chain of outer names, separated by
// '.', walking the outer reference until null (spec.md §4.C).
func (c *Container) GetFullName(idx ObjectIndex) (string, error) {
	if idx.IsNull() {
		return "", nil
	}
	row, err := c.GetRow(idx)
	if err != nil {
		return "", err
	}
	name, err := c.names.Resolve(row.ObjectName())
	if err != nil {
		return "", err
	}
	outer := row.OuterRef()
	if outer.IsNull() {
		return name, nil
	}
	parent, err := c.GetFullName(outer)
	if err != nil {
		return "", err
	}
	return parent + "." + name, nil
}

// topLevelImport follows an import row's Outer chain to its root, the
// top-level package the class lives under (spec.md §4.F "get_import_package").
func (c *Container) topLevelImport(row ImportRow) (ImportRow, error) {
	cur := row
	for {
		if cur.Outer.IsNull() {
			return cur, nil
		}
		r, err := c.GetRow(cur.Outer)
		if err != nil {
			return ImportRow{}, err
		}
		if r.Tag != TagImport {
			return ImportRow{}, fmt.Errorf("%w: import outer chain left the import table in %q", ErrBadNameReference, c.name)
		}
		cur = *r.Import
	}
}

// IsNative reports whether row is a native import: its top-level package
// self-identifies as this container, meaning the class is synthesized
// natively and has no row anywhere (spec.md §4.F "Is-native test").
func (c *Container) IsNative(row ImportRow) (bool, error) {
	top, err := c.topLevelImport(row)
	if err != nil {
		return false, err
	}
	name, err := c.names.Resolve(top.ObjectName)
	if err != nil {
		return false, err
	}
	return name == c.name, nil
}

// registerNativeClass synthesizes and caches a native class object with no
// table row, idempotently.
func (c *Container) registerNativeClass(name string) *UClass {
	if cls, ok := c.natives[name]; ok {
		return cls
	}
	cls := &UClass{
		baseObject: baseObject{
			container: c,
			self:      NullIndex,
			outer:     NullIndex,
			class:     NullIndex,
			archetype: NullIndex,
			fullName:  name,
			className: "Class",
		},
		Native: true,
	}
	c.natives[name] = cls
	return cls
}

// FindClass returns the native class registered under name for this
// container, used when an import has no corresponding row anywhere else
// (spec.md §4.C).
func (c *Container) FindClass(name string) (*UClass, bool) {
	cls, ok := c.natives[name]
	return cls, ok
}

// classNameOf returns the unqualified class name referenced by ref: the
// distinguished "Class" for a null ref, or the leaf ObjectName of whichever
// row ref points to.
func (c *Container) classNameOf(ref ObjectIndex) (string, error) {
	if ref.IsNull() {
		return "Class", nil
	}
	row, err := c.GetRow(ref)
	if err != nil {
		return "", err
	}
	return c.names.Resolve(row.ObjectName())
}

// IsMaterialized reports whether idx has already been constructed.
func (c *Container) IsMaterialized(idx ObjectIndex) bool {
	_, ok := c.objects[idx]
	return ok
}

// Object returns the previously materialized object at idx, if any.
func (c *Container) Object(idx ObjectIndex) (Object, bool) {
	obj, ok := c.objects[idx]
	return obj, ok
}

// CreateObject constructs the object at idx if it is not already
// materialized. For an export row this decodes its body via the
// ObjectCodecRegistry over [SerialOffset, SerialOffset+SerialSize); for an
// import row — which carries no body — it materializes a reference
// placeholder so later FindObjectIndex/GetFullName lookups by ObjectIndex
// succeed uniformly. Precondition: every dependency of idx has already been
// materialized (spec.md §4.C); violating it is a caller bug, not validated
// here.
func (c *Container) CreateObject(idx ObjectIndex) (Object, error) {
	if idx.IsNull() {
		return nil, fmt.Errorf("%w: cannot create the null object", ErrObjectNotMaterialized)
	}
	if obj, ok := c.objects[idx]; ok {
		return obj, nil
	}

	row, err := c.GetRow(idx)
	if err != nil {
		return nil, err
	}

	fullName, err := c.GetFullName(idx)
	if err != nil {
		return nil, err
	}

	if row.Tag == TagImport {
		className, err := c.names.Resolve(row.Import.ClassName)
		if err != nil {
			return nil, err
		}
		obj := &DefaultObject{baseObject{
			container: c,
			self:      idx,
			outer:     row.Import.Outer,
			fullName:  fullName,
			className: className,
		}}
		c.objects[idx] = obj
		return obj, nil
	}

	export := row.Export
	className, err := c.classNameOf(export.ClassRef)
	if err != nil {
		return nil, err
	}

	var payload any
	if export.SerialSize > 0 {
		// SerialOffset is an absolute stream position; c.body starts at
		// TotalHeaderSize.
		start := export.SerialOffset - c.header.TotalHeaderSize
		end := start + export.SerialSize
		if start < 0 || int(end) > len(c.body) {
			return nil, fmt.Errorf("%w: %q body range [%d,%d) exceeds stream", ErrObjectNotMaterialized, fullName, export.SerialOffset, export.SerialOffset+export.SerialSize)
		}
		raw := c.body[start:end]
		payload, err = c.codecs.BodyCodec(className).Decode(raw, &ObjectCodecContext{Names: c.names})
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrObjectNotMaterialized, fullName, err)
		}
	}

	base := baseObject{
		container: c,
		self:      idx,
		outer:     export.OuterRef,
		class:     export.ClassRef,
		archetype: export.ArchetypeRef,
		flags:     export.ObjectFlags,
		fullName:  fullName,
		className: className,
		payload:   payload,
	}
	obj := newVariant(className, base)
	c.objects[idx] = obj
	return obj, nil
}
