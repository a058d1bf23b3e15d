package service

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/zeebo/blake3"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/hle/errors"
	"github.com/wippyai/hle/ipc"
	"github.com/wippyai/hle/result"
)

// FunctionCode selects a command within one service's table.
type FunctionCode uint32

// Handler runs one command against instance s. It reads arguments from req,
// writes results to resp, and returns the call's result. Handlers must
// validate every input before mutating s.
type Handler[S any] func(s S, c *Context, req *ipc.Request, resp *ipc.Response) result.Code

// Entry is one row of a dispatch table.
type Entry[S any] struct {
	Handler Handler[S]
	Name    string
	// In and Out describe the fixed-width payload fields in order. They are
	// used for validation, tooling and documentation; handlers still read
	// and write through the views.
	In   []wit.Type
	Out  []wit.Type
	Code FunctionCode
	// Stub marks a recognized command whose behavior is an intentional no-op
	// beyond acknowledging the call.
	Stub bool
}

// Command is the type-erased description of an entry.
type Command struct {
	Name string
	In   []wit.Type
	Out  []wit.Type
	Code FunctionCode
	Stub bool
}

// Table is the immutable dispatch table for one service type.
type Table[S any] struct {
	index       map[FunctionCode]int
	name        string
	fingerprint string
	entries     []Entry[S]
}

// NewTable builds a table. Duplicate codes, missing handlers and non
// fixed-width field descriptors are rejected.
func NewTable[S any](name string, entries ...Entry[S]) (*Table[S], error) {
	t := &Table[S]{
		name:    name,
		entries: make([]Entry[S], len(entries)),
		index:   make(map[FunctionCode]int, len(entries)),
	}
	copy(t.entries, entries)
	sort.SliceStable(t.entries, func(i, j int) bool { return t.entries[i].Code < t.entries[j].Code })

	for i, e := range t.entries {
		if _, dup := t.index[e.Code]; dup {
			return nil, errors.Duplicate(errors.PhaseRegister, name, uint32(e.Code))
		}
		if e.Handler == nil {
			return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
				Service(name).Command(uint32(e.Code)).Detail("entry %q has no handler", e.Name).Build()
		}
		if _, err := ipc.Size(e.In); err != nil {
			return nil, errors.Wrap(errors.PhaseRegister, errors.KindTypeMismatch, err, name+"."+e.Name+" input")
		}
		if _, err := ipc.Size(e.Out); err != nil {
			return nil, errors.Wrap(errors.PhaseRegister, errors.KindTypeMismatch, err, name+"."+e.Name+" output")
		}
		t.index[e.Code] = i
	}
	t.fingerprint = fingerprint(name, t.entries)
	return t, nil
}

// MustTable is NewTable for package-level declarations. A malformed table is
// a programming error and panics at initialization.
func MustTable[S any](name string, entries ...Entry[S]) *Table[S] {
	t, err := NewTable(name, entries...)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the service type name.
func (t *Table[S]) Name() string { return t.name }

// Len returns the number of entries.
func (t *Table[S]) Len() int { return len(t.entries) }

// Lookup finds the entry for code.
func (t *Table[S]) Lookup(code FunctionCode) (*Entry[S], bool) {
	i, ok := t.index[code]
	if !ok {
		return nil, false
	}
	return &t.entries[i], true
}

// Commands lists the table's entries ordered by code.
func (t *Table[S]) Commands() []Command {
	out := make([]Command, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.command()
	}
	return out
}

// Stubs returns the codes of entries flagged as stubs.
func (t *Table[S]) Stubs() []FunctionCode {
	var out []FunctionCode
	for _, e := range t.entries {
		if e.Stub {
			out = append(out, e.Code)
		}
	}
	return out
}

// Fingerprint is a blake3 digest over the table's codes, names, stub flags
// and field layouts. Two builds agree on a service's protocol surface iff
// their fingerprints match.
func (t *Table[S]) Fingerprint() string { return t.fingerprint }

// Bind attaches the table to an instance.
func (t *Table[S]) Bind(s S) Commands {
	return &bound[S]{table: t, self: s}
}

func (e *Entry[S]) command() Command {
	return Command{Code: e.Code, Name: e.Name, Stub: e.Stub, In: e.In, Out: e.Out}
}

func fingerprint[S any](name string, entries []Entry[S]) string {
	var buf bytes.Buffer
	var word [4]byte
	buf.WriteString(name)
	for _, e := range entries {
		binary.LittleEndian.PutUint32(word[:], uint32(e.Code))
		buf.Write(word[:])
		buf.WriteString(e.Name)
		if e.Stub {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		buf.WriteString(ipc.Signature(e.In))
		buf.WriteString(ipc.Signature(e.Out))
	}
	sum := blake3.Sum256(buf.Bytes())
	return "blake3:" + hex.EncodeToString(sum[:])
}

// Commands is a table bound to one instance, as seen by the dispatcher.
type Commands interface {
	Name() string
	Lookup(code FunctionCode) (Command, bool)
	List() []Command
	Fingerprint() string

	invoke(code FunctionCode, c *Context, req *ipc.Request, resp *ipc.Response) (result.Code, bool)
}

type bound[S any] struct {
	self  S
	table *Table[S]
}

func (b *bound[S]) Name() string        { return b.table.name }
func (b *bound[S]) List() []Command     { return b.table.Commands() }
func (b *bound[S]) Fingerprint() string { return b.table.fingerprint }

func (b *bound[S]) Lookup(code FunctionCode) (Command, bool) {
	e, ok := b.table.Lookup(code)
	if !ok {
		return Command{}, false
	}
	return e.command(), true
}

func (b *bound[S]) invoke(code FunctionCode, c *Context, req *ipc.Request, resp *ipc.Response) (result.Code, bool) {
	e, ok := b.table.Lookup(code)
	if !ok {
		return result.UnknownCommandID, false
	}
	return e.Handler(b.self, c, req, resp), true
}
