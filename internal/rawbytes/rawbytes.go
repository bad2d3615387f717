// Package rawbytes exposes sample slices as raw little-endian byte slices
// without copying, for zero-copy publishing and file writes. The returned
// slice aliases the input: the caller must not let it outlive the samples.
package rawbytes

import "unsafe"

// FromUint16s views a []uint16 as the bytes backing it.
func FromUint16s(d []uint16) []byte {
	if len(d) == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&d[0])), 2*len(d))
}

// FromInt16s views a []int16 as the bytes backing it.
func FromInt16s(d []int16) []byte {
	if len(d) == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&d[0])), 2*len(d))
}
