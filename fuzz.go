// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package upkcore

// Fuzz is the go-fuzz entry point: decode data as a container and walk
// every row's full name, the broadest surface that touches the name table,
// the reference algebra, and both tables without requiring a second
// container to resolve imports against.
func Fuzz(data []byte) int {
	c, err := DecodeContainer(data, "fuzz")
	if err != nil {
		return 0
	}
	for i := range c.Exports() {
		if _, err := c.GetFullName(FromExport(i)); err != nil {
			return 0
		}
	}
	for i := range c.Imports() {
		if _, err := c.GetFullName(FromImport(i)); err != nil {
			return 0
		}
	}
	return 1
}
