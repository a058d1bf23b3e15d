// Package result defines the status value returned by every service handler.
//
// A Code is zero for success. Any other value packs a module number in the
// low 9 bits and a description in the following 13 bits:
//
//	bits  0..8   module
//	bits  9..21  description
//
// Codes are plain values: comparable with ==, safe to copy, immutable.
package result
