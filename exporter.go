// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package upkcore

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/saferwall/upkcore/internal/log"
)

// ExportEngineVersion is the canonical engine-version value the exporter
// stamps on every container it writes (spec.md §4.H step 5). The real
// engine's version numbering is outside the core's concern; this constant
// is the exporter's one fixed opinion about it.
const ExportEngineVersion uint32 = 0x0000270F

// defaultHasStackFlag marks an export whose ObjectFlags must be carried through to
// the rewritten row unchanged, overriding the variant-based flag rewrite in
// step 6. The source format does not define this bit publicly; callers
// that know their container's real flag layout can still reach it by
// supplying their own ExportOptions.HasStackFlag.
const defaultHasStackFlag uint64 = 1 << 63

// ExportState is a step in the exporter's linear, non-reentrant state
// machine (spec.md §4.H).
type ExportState int

// States, in the order the exporter moves through them.
const (
	StateBuilt ExportState = iota
	StateFiltered
	StateReindexed
	StateHeaderWritten
	StateTablesWritten
	StateBodiesWritten
	StateFinalized
)

// ErrExportState is returned when an Exporter method is called out of its
// linear sequence.
var ErrExportState = errors.New("upkcore: exporter called out of sequence")

// ExportOptions configures an Exporter, mirroring file.go's Options.
type ExportOptions struct {
	// Codecs decodes/encodes object bodies. Defaults to the source
	// container's own registry.
	Codecs ObjectCodecRegistry

	// Resolver resolves imports across containers during the filter
	// phase. Nil is valid for a self-contained export where every import
	// is expected to be native; any non-native import then filters out as
	// unresolved.
	Resolver *Resolver

	// Augment runs once after filtering (spec.md §4.H step 4), e.g. to
	// insert synthesized nodes. Nil means no augmentation.
	Augment func(*Exporter) error

	// HasStackFlag overrides defaultHasStackFlag.
	HasStackFlag uint64

	Logger *log.Helper
}

// exportedRow tracks one surviving table row alongside the ObjectIndex it
// had in the source container, so Reindex and FindObjectIndex can map
// source-container identity to the new table position.
type exportedRow[T any] struct {
	row  T
	orig ObjectIndex
}

// Exporter builds a new container from a filtered, reindexed subset of a
// source Container and writes it out in the two-pass layout spec.md §4.H
// requires (spec.md §4.H).
type Exporter struct {
	source *Container
	opts   ExportOptions
	state  ExportState

	header  FileSummary
	names   *NameTable
	imports []exportedRow[ImportRow]
	exports []exportedRow[ExportRow]

	// importTargets[i] is the resolved NodeRef for imports[i], used by the
	// internal-import removal step and by FindObjectIndex for native-class
	// nodes.
	importTargets []NodeRef
}

// NewExporter clones source's header and tables (step 1 of the build
// phase) and returns an Exporter in StateBuilt.
func NewExporter(source *Container, opts ExportOptions) (*Exporter, error) {
	if opts.Codecs == nil {
		opts.Codecs = source.codecs
	}
	if opts.HasStackFlag == 0 {
		opts.HasStackFlag = defaultHasStackFlag
	}
	e := &Exporter{source: source, opts: opts, state: StateBuilt}

	header, err := roundTrip[FileSummary](FileSummaryCodec{}, source.Header())
	if err != nil {
		return nil, fmt.Errorf("clone header: %w", err)
	}
	e.header = header

	e.names = NewNameTable()
	for _, entry := range source.Names().Entries() {
		cloned, err := roundTrip[NameEntry](NameEntryCodec{}, entry)
		if err != nil {
			return nil, fmt.Errorf("clone name table: %w", err)
		}
		e.names.AppendRaw(cloned)
	}

	for i, row := range source.Imports() {
		cloned, err := roundTrip[ImportRow](ImportRowCodec{}, row)
		if err != nil {
			return nil, fmt.Errorf("clone import %d: %w", i, err)
		}
		e.imports = append(e.imports, exportedRow[ImportRow]{row: cloned, orig: FromImport(i)})
	}
	for i, row := range source.Exports() {
		cloned, err := roundTrip[ExportRow](ExportRowCodec{}, row)
		if err != nil {
			return nil, fmt.Errorf("clone export %d: %w", i, err)
		}
		e.exports = append(e.exports, exportedRow[ExportRow]{row: cloned, orig: FromExport(i)})
	}
	return e, nil
}

// roundTrip encodes v and decodes it back, decoupling the clone's backing
// memory from v's (spec.md §4.H step 1).
func roundTrip[T any](codec RowCodec[T], v T) (T, error) {
	var buf bytes.Buffer
	if err := codec.Encode(&buf, v); err != nil {
		var zero T
		return zero, err
	}
	return codec.Decode(&buf)
}

// State returns the exporter's current state.
func (e *Exporter) State() ExportState { return e.state }

func (e *Exporter) requireState(want ExportState) error {
	if e.state != want {
		return fmt.Errorf("%w: in state %d, want %d", ErrExportState, e.state, want)
	}
	return nil
}

// Filter drops rows per spec.md §4.H steps 2-4 and advances Built ->
// Filtered.
func (e *Exporter) Filter() error {
	if err := e.requireState(StateBuilt); err != nil {
		return err
	}

	if err := e.filterImportsPass1(); err != nil {
		return err
	}
	if err := e.filterWorldExports(); err != nil {
		return err
	}
	if err := e.removeInternalImports(); err != nil {
		return err
	}
	if e.opts.Augment != nil {
		if err := e.opts.Augment(e); err != nil {
			return err
		}
	}

	e.state = StateFiltered
	return nil
}

// filterImportsPass1 drops all-"None" imports and imports with no
// resolvable target (spec.md §4.H step 2 imports clause, step 3's
// dependency on resolution).
func (e *Exporter) filterImportsPass1() error {
	var kept []exportedRow[ImportRow]
	var targets []NodeRef
	for _, ir := range e.imports {
		row := ir.row
		if e.isAllNone(row) {
			continue
		}
		target, present, err := e.resolveImportTarget(row, ir.orig)
		if err != nil {
			return err
		}
		if !present {
			continue
		}
		kept = append(kept, ir)
		targets = append(targets, target)
	}
	e.imports = kept
	e.importTargets = targets
	return nil
}

func (e *Exporter) isAllNone(row ImportRow) bool {
	for _, fn := range []FName{row.ClassPackage, row.ClassName, row.ObjectName} {
		s, err := e.source.Names().Resolve(fn)
		if err != nil || s != NoneName {
			return false
		}
	}
	return true
}

// resolveImportTarget mirrors Resolver.resolveImport's search, folding in
// the native-class case, so the filter phase can decide whether an
// import's resolved object is present without requiring every container it
// might cross into to already be loaded.
func (e *Exporter) resolveImportTarget(row ImportRow, idx ObjectIndex) (NodeRef, bool, error) {
	fullName, err := e.source.GetFullName(idx)
	if err != nil {
		return NodeRef{}, false, err
	}
	native, err := e.source.IsNative(row)
	if err != nil {
		return NodeRef{}, false, err
	}
	if native {
		leaf := leafSegment(fullName)
		if _, ok := e.source.FindClass(leaf); ok {
			return NativeClassNode(e.source.Name(), leaf), true, nil
		}
		return NodeRef{}, false, nil
	}
	if e.opts.Resolver == nil {
		return NodeRef{}, false, nil
	}
	target, err := e.opts.Resolver.resolveImport(row, fullName, e.source)
	if err != nil {
		if errors.Is(err, ErrUnresolvedImport) || errors.Is(err, ErrUnresolvedContainer) {
			return NodeRef{}, false, nil
		}
		return NodeRef{}, false, err
	}
	return target, true, nil
}

// filterWorldExports drops zero-size exports, then if the surviving set
// contains a UWorld object, drops it and every export whose outer chain
// contains it (spec.md §4.H step 2, map-container slimming).
func (e *Exporter) filterWorldExports() error {
	var sized []exportedRow[ExportRow]
	for _, er := range e.exports {
		if er.row.SerialSize != 0 {
			sized = append(sized, er)
		}
	}
	e.exports = sized

	var worldOrig ObjectIndex
	for _, er := range e.exports {
		className, err := e.source.classNameOf(er.row.ClassRef)
		if err != nil {
			return err
		}
		if className == "World" {
			worldOrig = er.orig
			break
		}
	}
	if worldOrig.IsNull() {
		return nil
	}

	var kept []exportedRow[ExportRow]
	for _, er := range e.exports {
		if er.orig == worldOrig {
			continue
		}
		under, err := e.outerChainReaches(er.row.OuterRef, worldOrig)
		if err != nil {
			return err
		}
		if under {
			continue
		}
		kept = append(kept, er)
	}
	e.exports = kept
	return nil
}

// outerChainReaches walks start's outer chain, in the ORIGINAL source
// container's tables, looking for target.
func (e *Exporter) outerChainReaches(start, target ObjectIndex) (bool, error) {
	cur := start
	for !cur.IsNull() {
		if cur == target {
			return true, nil
		}
		row, err := e.source.GetRow(cur)
		if err != nil {
			return false, err
		}
		cur = row.OuterRef()
	}
	return false, nil
}

// removeInternalImports drops any import whose resolved object is an
// export already present in this same container: this would otherwise be
// a self-reference via an import. spec.md §9 flags the source engine's
// equivalent (RemoveInternalImports) as conservative — it drops the import
// rather than promoting it to a direct export reference — and this
// implementation preserves that drop-and-lose behavior rather than
// silently repairing it.
func (e *Exporter) removeInternalImports() error {
	var kept []exportedRow[ImportRow]
	var keptTargets []NodeRef
	for i, ir := range e.imports {
		target := e.importTargets[i]
		if target.Container == e.source.Name() && target.Index.Tag() == TagExport {
			if e.logger() != nil {
				e.logger().Warnf("dropping internal import %q: resolves to an export of this container", target.Container)
			}
			continue
		}
		kept = append(kept, ir)
		keptTargets = append(keptTargets, target)
	}
	e.imports = kept
	e.importTargets = keptTargets
	return nil
}

func (e *Exporter) logger() *log.Helper { return e.opts.Logger }

// Reindex rewrites header fields and export-row flags (spec.md §4.H steps
// 5-6), then remaps every outer/class/super/archetype reference to its new
// table position (step 7), advancing Filtered -> Reindexed.
func (e *Exporter) Reindex() error {
	if err := e.requireState(StateFiltered); err != nil {
		return err
	}

	e.header.LicenseeVersion = 0
	e.header.CookerVersion = 0
	e.header.EngineVersion = ExportEngineVersion
	e.header.PackageFlags = 1
	e.header.AdditionalPackagesToCook = nil
	e.header.TextureAllocations = nil
	e.header.ThumbnailTableOffset = 0

	for i := range e.exports {
		className, err := e.source.classNameOf(e.exports[i].row.ClassRef)
		if err != nil {
			return err
		}
		row := &e.exports[i].row
		switch {
		case className == "Package":
			row.ObjectFlags = flagsUPackage
			row.PackageFlags = 1
		case IsResourceClass(className):
			row.ObjectFlags = flagsResourceObject
			row.PackageFlags = 0
		default:
			row.ObjectFlags = flagsDefaultObject
			row.PackageFlags = 0
		}
	}

	newIndex := func(orig ObjectIndex) ObjectIndex {
		if orig.IsNull() {
			return NullIndex
		}
		return e.FindObjectIndex(ObjectNode(e.source.Name(), orig))
	}

	for i := range e.imports {
		e.imports[i].row.Outer = newIndex(e.imports[i].row.Outer)
	}
	for i := range e.exports {
		row := &e.exports[i].row
		row.OuterRef = newIndex(row.OuterRef)
		row.ClassRef = newIndex(row.ClassRef)
		row.SuperRef = newIndex(row.SuperRef)
		row.ArchetypeRef = newIndex(row.ArchetypeRef)
	}

	e.state = StateReindexed
	return nil
}

// FindObjectIndex searches the exporter's new tables for node's object:
// exports first (positive index), then imports (negative index), else
// null (spec.md §4.H step 7).
func (e *Exporter) FindObjectIndex(node NodeRef) ObjectIndex {
	for i, er := range e.exports {
		if er.orig == node.Index && node.Container == e.source.Name() && !node.IsNativeClass() {
			return FromExport(i)
		}
	}
	for i, ir := range e.imports {
		if ir.orig == node.Index && node.Container == e.source.Name() && !node.IsNativeClass() {
			return FromImport(i)
		}
		if node.IsNativeClass() && e.importTargets[i] == node {
			return FromImport(i)
		}
	}
	return NullIndex
}

// WriteTo performs the two-pass write (spec.md §4.H write phase),
// advancing Reindexed -> HeaderWritten -> TablesWritten -> BodiesWritten ->
// Finalized. w must support Seek for the final header/export-table
// rewrite.
func (e *Exporter) WriteTo(w io.WriteSeeker) error {
	if err := e.requireState(StateReindexed); err != nil {
		return err
	}

	headerCodec := FileSummaryCodec{}
	if err := headerCodec.Encode(w, e.header); err != nil {
		return err
	}
	e.state = StateHeaderWritten

	nameOffset, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	nameCodec := NameEntryCodec{}
	for _, entry := range e.names.Entries() {
		if err := nameCodec.Encode(w, entry); err != nil {
			return err
		}
	}

	importOffset, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	importCodec := ImportRowCodec{}
	for _, ir := range e.imports {
		if err := importCodec.Encode(w, ir.row); err != nil {
			return err
		}
	}

	exportOffset, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	exportCodec := ExportRowCodec{}
	for _, er := range e.exports {
		if err := exportCodec.Encode(w, er.row); err != nil {
			return err
		}
	}

	dependsOffset, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	for range e.exports {
		if err := binaryWriteZeroInt32(w); err != nil {
			return err
		}
	}

	// Step 6: thumbnail_offset = 0, nothing emitted.

	totalHeaderSize, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	e.state = StateTablesWritten

	for i := range e.exports {
		orig := e.exports[i].orig
		if !e.source.IsMaterialized(orig) {
			if _, err := e.source.CreateObject(orig); err != nil {
				return err
			}
		}
		sourceObj, _ := e.source.Object(orig)

		if sourceObj != nil && sourceObj.ObjectFlags()&e.opts.HasStackFlag != 0 {
			e.exports[i].row.ObjectFlags = sourceObj.ObjectFlags()
		}

		offset, err := w.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}

		// The row's ClassRef is already reindexed; the class name comes from
		// the source row, whose ClassRef indexes the source tables.
		className, err := e.source.classNameOf(e.source.Exports()[orig.MustAsExport()].ClassRef)
		if err != nil {
			return err
		}
		var payload any
		if sourceObj != nil {
			payload = sourceObj.Payload()
		}
		ctx := &ObjectCodecContext{
			Names: e.names,
			Remap: func(orig ObjectIndex) ObjectIndex {
				if orig.IsNull() {
					return NullIndex
				}
				return e.FindObjectIndex(ObjectNode(e.source.Name(), orig))
			},
		}
		if err := e.opts.Codecs.BodyCodec(className).Encode(w, payload, ctx); err != nil {
			return err
		}

		pos, err := w.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		e.exports[i].row.SerialOffset = int32(offset)
		e.exports[i].row.SerialSize = int32(pos - offset)
	}
	e.state = StateBodiesWritten

	if _, err := w.Seek(exportOffset, io.SeekStart); err != nil {
		return err
	}
	for _, er := range e.exports {
		if err := exportCodec.Encode(w, er.row); err != nil {
			return err
		}
	}

	e.header.NameOffset = int32(nameOffset)
	e.header.NameCount = int32(e.names.Len())
	e.header.ImportOffset = int32(importOffset)
	e.header.ImportCount = int32(len(e.imports))
	e.header.ExportOffset = int32(exportOffset)
	e.header.ExportCount = int32(len(e.exports))
	e.header.DependsOffset = int32(dependsOffset)
	e.header.TotalHeaderSize = int32(totalHeaderSize)

	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := headerCodec.Encode(w, e.header); err != nil {
		return err
	}

	e.state = StateFinalized
	return nil
}

func binaryWriteZeroInt32(w io.Writer) error {
	_, err := w.Write([]byte{0, 0, 0, 0})
	return err
}

// Export runs Filter, Reindex, and WriteTo in sequence against a fresh
// Exporter built from source, a convenience for the common case where a
// caller does not need to inspect intermediate state.
func Export(source *Container, w io.WriteSeeker, opts ExportOptions) error {
	e, err := NewExporter(source, opts)
	if err != nil {
		return err
	}
	if err := e.Filter(); err != nil {
		return err
	}
	if err := e.Reindex(); err != nil {
		return err
	}
	return e.WriteTo(w)
}
