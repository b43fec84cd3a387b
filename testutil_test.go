// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package upkcore

import "bytes"

// buildContainer assembles a valid container byte stream from a pre-interned
// name table, import/export tables, and per-export raw bodies, computing
// every header offset the way DecodeContainer expects. Tests build rows with
// FNames drawn from the same NameTable they pass in here, so name ids line
// up.
func buildContainer(t testingT, names *NameTable, imports []ImportRow, exports []ExportRow, bodies [][]byte) []byte {
	t.Helper()

	var namesBuf, importsBuf, exportsBuf, dependsBuf, bodyBuf bytes.Buffer

	nameCodec := NameEntryCodec{}
	for _, e := range names.Entries() {
		if err := nameCodec.Encode(&namesBuf, e); err != nil {
			t.Fatalf("encode name: %v", err)
		}
	}

	importCodec := ImportRowCodec{}
	for _, row := range imports {
		if err := importCodec.Encode(&importsBuf, row); err != nil {
			t.Fatalf("encode import: %v", err)
		}
	}

	exportsOut := make([]ExportRow, len(exports))
	copy(exportsOut, exports)
	for i, b := range bodies {
		exportsOut[i].SerialOffset = int32(bodyBuf.Len())
		exportsOut[i].SerialSize = int32(len(b))
		bodyBuf.Write(b)
	}
	exportCodec := ExportRowCodec{}
	for _, row := range exportsOut {
		if err := exportCodec.Encode(&exportsBuf, row); err != nil {
			t.Fatalf("encode export: %v", err)
		}
	}

	for range exportsOut {
		dependsBuf.Write([]byte{0, 0, 0, 0})
	}

	header := FileSummary{
		Magic:       0x9E2A83C1,
		FileVersion: 1,
		PackageName: "Test",
		NameCount:   int32(names.Len()),
		ImportCount: int32(len(imports)),
		ExportCount: int32(len(exports)),
	}
	var headerBuf bytes.Buffer
	if err := (FileSummaryCodec{}).Encode(&headerBuf, header); err != nil {
		t.Fatalf("encode header: %v", err)
	}
	headerLen := int32(headerBuf.Len())

	header.NameOffset = headerLen
	header.ImportOffset = header.NameOffset + int32(namesBuf.Len())
	header.ExportOffset = header.ImportOffset + int32(importsBuf.Len())
	header.DependsOffset = header.ExportOffset + int32(exportsBuf.Len())
	header.TotalHeaderSize = header.DependsOffset + int32(dependsBuf.Len())

	// SerialOffset is an absolute stream position: shift each body offset
	// past the header and tables, now that their size is known, and
	// re-encode the (fixed-width) export rows.
	exportsBuf.Reset()
	for i, row := range exportsOut {
		if i < len(bodies) {
			row.SerialOffset += header.TotalHeaderSize
		}
		if err := exportCodec.Encode(&exportsBuf, row); err != nil {
			t.Fatalf("encode export: %v", err)
		}
	}

	headerBuf.Reset()
	if err := (FileSummaryCodec{}).Encode(&headerBuf, header); err != nil {
		t.Fatalf("encode header: %v", err)
	}
	if int32(headerBuf.Len()) != headerLen {
		t.Fatalf("header length changed after offset patch: %d vs %d", headerBuf.Len(), headerLen)
	}

	var out bytes.Buffer
	out.Write(headerBuf.Bytes())
	out.Write(namesBuf.Bytes())
	out.Write(importsBuf.Bytes())
	out.Write(exportsBuf.Bytes())
	out.Write(dependsBuf.Bytes())
	out.Write(bodyBuf.Bytes())
	return out.Bytes()
}

// testingT is the subset of *testing.T buildContainer needs, so it can also
// be called with a *testing.B if benchmarks ever want it.
type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}
