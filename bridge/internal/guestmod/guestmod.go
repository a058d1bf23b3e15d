// Package guestmod synthesizes minimal guest modules that import host
// functions and re-export them as trampolines next to an exported linear
// memory. The host can then drive its own imports as a guest would.
package guestmod

import (
	"github.com/tetratelabs/wazero/api"
)

// Builder builds a trampoline guest module.
type Builder struct {
	hostModuleName   string
	memoryExportName string
	funcs            []hostFunc
	memoryPages      uint32
}

type hostFunc struct {
	name        string
	paramTypes  []api.ValueType
	resultTypes []api.ValueType
}

// New creates a builder importing from hostModuleName, with one page of
// memory exported as "memory".
func New(hostModuleName string) *Builder {
	return &Builder{
		hostModuleName:   hostModuleName,
		memoryExportName: "memory",
		memoryPages:      1,
	}
}

// AddFunc imports name from the host module and re-exports it unchanged.
func (b *Builder) AddFunc(name string, params, results []api.ValueType) *Builder {
	b.funcs = append(b.funcs, hostFunc{name: name, paramTypes: params, resultTypes: results})
	return b
}

// SetMemory sets the initial page count and export name of the memory.
func (b *Builder) SetMemory(pages uint32, exportName string) *Builder {
	b.memoryPages = pages
	b.memoryExportName = exportName
	return b
}

// Build generates the module bytes.
func (b *Builder) Build() []byte {
	wasm := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if len(b.funcs) > 0 {
		wasm = appendSection(wasm, 0x01, b.buildTypeSection())
		wasm = appendSection(wasm, 0x02, b.buildImportSection())
		wasm = appendSection(wasm, 0x03, b.buildFuncSection())
	}
	wasm = appendSection(wasm, 0x05, b.buildMemorySection())
	wasm = appendSection(wasm, 0x07, b.buildExportSection())
	if len(b.funcs) > 0 {
		wasm = appendSection(wasm, 0x0a, b.buildCodeSection())
	}
	return wasm
}

// one type per function, shared by the import and its trampoline
func (b *Builder) buildTypeSection() []byte {
	section := EncodeULEB128(uint32(len(b.funcs)))
	for _, f := range b.funcs {
		section = append(section, 0x60)
		section = append(section, EncodeULEB128(uint32(len(f.paramTypes)))...)
		for _, t := range f.paramTypes {
			section = append(section, ValTypeToWasm(t))
		}
		section = append(section, EncodeULEB128(uint32(len(f.resultTypes)))...)
		for _, t := range f.resultTypes {
			section = append(section, ValTypeToWasm(t))
		}
	}
	return section
}

func (b *Builder) buildImportSection() []byte {
	section := EncodeULEB128(uint32(len(b.funcs)))
	for i, f := range b.funcs {
		section = appendName(section, b.hostModuleName)
		section = appendName(section, f.name)
		section = append(section, 0x00)
		section = append(section, EncodeULEB128(uint32(i))...)
	}
	return section
}

func (b *Builder) buildFuncSection() []byte {
	section := EncodeULEB128(uint32(len(b.funcs)))
	for i := range b.funcs {
		section = append(section, EncodeULEB128(uint32(i))...)
	}
	return section
}

func (b *Builder) buildMemorySection() []byte {
	section := []byte{0x01, 0x00}
	return append(section, EncodeULEB128(b.memoryPages)...)
}

func (b *Builder) buildExportSection() []byte {
	section := EncodeULEB128(uint32(len(b.funcs) + 1))

	section = appendName(section, b.memoryExportName)
	section = append(section, 0x02, 0x00)

	numImports := len(b.funcs)
	for i, f := range b.funcs {
		section = appendName(section, f.name)
		section = append(section, 0x00)
		section = append(section, EncodeULEB128(uint32(numImports+i))...)
	}
	return section
}

func (b *Builder) buildCodeSection() []byte {
	section := EncodeULEB128(uint32(len(b.funcs)))
	for i, f := range b.funcs {
		body := buildFuncBody(i, f)
		section = append(section, EncodeULEB128(uint32(len(body)))...)
		section = append(section, body...)
	}
	return section
}

// buildFuncBody forwards every parameter to the import at importIdx.
func buildFuncBody(importIdx int, f hostFunc) []byte {
	body := []byte{0x00}
	for i := range f.paramTypes {
		body = append(body, 0x20)
		body = append(body, EncodeULEB128(uint32(i))...)
	}
	body = append(body, 0x10)
	body = append(body, EncodeULEB128(uint32(importIdx))...)
	return append(body, 0x0b)
}
