package ipc

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/hle/errors"
)

// Width returns the encoded size of a primitive field descriptor.
func Width(t wit.Type) (int, error) {
	switch t.(type) {
	case wit.Bool, wit.U8, wit.S8:
		return 1, nil
	case wit.U16, wit.S16:
		return 2, nil
	case wit.U32, wit.S32, wit.F32:
		return 4, nil
	case wit.U64, wit.S64, wit.F64:
		return 8, nil
	default:
		return 0, errors.TypeMismatch(errors.PhaseRegister, "fixed-width primitive", TypeName(t))
	}
}

// Size returns the total encoded size of a field list.
func Size(types []wit.Type) (int, error) {
	total := 0
	for _, t := range types {
		w, err := Width(t)
		if err != nil {
			return 0, err
		}
		total += w
	}
	return total, nil
}

// TypeName renders a descriptor the way WIT spells it.
func TypeName(t wit.Type) string {
	switch v := t.(type) {
	case nil:
		return "<nil>"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		return "typedef"
	default:
		return fmt.Sprintf("%T", t)
	}
}

// Signature renders a field list as "(u32, u8)".
func Signature(types []wit.Type) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = TypeName(t)
	}
	return "(" + strings.Join(names, ", ") + ")"
}

// EncodeArgs parses textual arguments against descriptors and packs them
// little-endian. Integers accept Go literal syntax (7, 0x3E, 0b1).
func EncodeArgs(types []wit.Type, args []string) ([]byte, error) {
	if len(args) != len(types) {
		return nil, errors.InvalidInput(errors.PhaseEncode,
			fmt.Sprintf("expected %d arguments %s, got %d", len(types), Signature(types), len(args)))
	}
	size, err := Size(types)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, size)
	for i, t := range types {
		b, err := encodeArg(t, strings.TrimSpace(args[i]))
		if err != nil {
			return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidInput, err,
				fmt.Sprintf("argument %d (%s)", i, TypeName(t)))
		}
		out = append(out, b...)
	}
	return out, nil
}

func encodeArg(t wit.Type, s string) ([]byte, error) {
	switch t.(type) {
	case wit.Bool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, err
		}
		if v {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case wit.U8, wit.U16, wit.U32, wit.U64:
		w, _ := Width(t)
		v, err := strconv.ParseUint(s, 0, w*8)
		if err != nil {
			return nil, err
		}
		return putUint(w, v), nil
	case wit.S8, wit.S16, wit.S32, wit.S64:
		w, _ := Width(t)
		v, err := strconv.ParseInt(s, 0, w*8)
		if err != nil {
			return nil, err
		}
		return putUint(w, uint64(v)), nil
	case wit.F32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, err
		}
		return putUint(4, uint64(math.Float32bits(float32(v)))), nil
	case wit.F64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return putUint(8, math.Float64bits(v)), nil
	default:
		return nil, errors.TypeMismatch(errors.PhaseEncode, "fixed-width primitive", TypeName(t))
	}
}

func putUint(width int, v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b[:width]
}

// DecodeValues unpacks a payload according to descriptors. Trailing bytes
// are an error so that layout drift is visible.
func DecodeValues(types []wit.Type, payload []byte) ([]any, error) {
	size, err := Size(types)
	if err != nil {
		return nil, err
	}
	if len(payload) != size {
		return nil, errors.InvalidData(errors.PhaseDecode,
			fmt.Sprintf("payload is %d bytes, layout %s needs %d", len(payload), Signature(types), size))
	}
	req := NewRequest(&Call{Payload: payload}, nil)
	values := make([]any, len(types))
	for i, t := range types {
		switch t.(type) {
		case wit.Bool:
			values[i] = req.Bool()
		case wit.U8:
			values[i] = req.U8()
		case wit.S8:
			values[i] = int8(req.U8())
		case wit.U16:
			values[i] = req.U16()
		case wit.S16:
			values[i] = int16(req.U16())
		case wit.U32:
			values[i] = req.U32()
		case wit.S32:
			values[i] = int32(req.U32())
		case wit.U64:
			values[i] = req.U64()
		case wit.S64:
			values[i] = int64(req.U64())
		case wit.F32:
			values[i] = req.F32()
		case wit.F64:
			values[i] = math.Float64frombits(req.U64())
		}
	}
	return values, req.Err()
}
