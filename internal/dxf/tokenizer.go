package dxf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/rpaloschi/dxf-go/core"
)

// binarySentinel opens every binary DXF file.
var binarySentinel = []byte("AutoCAD Binary DXF\r\n\x1a\x00")

// IsBinary reports whether data is a binary DXF file.
func IsBinary(data []byte) bool {
	return bytes.HasPrefix(data, binarySentinel)
}

// binaryTokenizer reads R12 (one byte group codes) and R13+ (two byte
// little endian group codes) binary DXF into dxf-go tags, so that both
// encodings are decoded by the same entity constructors.
type binaryTokenizer struct {
	data   []byte
	pos    int
	wide   bool
	decode func(string) string
}

func newBinaryTokenizer(data []byte, decode func(string) string) (*binaryTokenizer, error) {
	body := data[len(binarySentinel):]
	t := &binaryTokenizer{data: body, decode: decode}

	// The first group is always 0/SECTION, which tells the code width apart.
	switch {
	case len(body) >= 3 && body[0] == 0 && body[1] == 0 && body[2] == 'S':
		t.wide = true
	case len(body) >= 2 && body[0] == 0 && body[1] == 'S':
		t.wide = false
	default:
		return nil, fmt.Errorf("%w: unrecognized binary layout", ErrMalformed)
	}

	return t, nil
}

// readBinary tokenizes a whole binary file.
func readBinary(data []byte, decode func(string) string) (core.TagSlice, error) {
	t, err := newBinaryTokenizer(data, decode)
	if err != nil {
		return nil, err
	}

	var tags core.TagSlice
	for t.pos < len(t.data) {
		tag, err := t.next()
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func (t *binaryTokenizer) next() (*core.Tag, error) {
	code, err := t.readCode()
	if err != nil {
		return nil, err
	}

	var value core.DataType
	switch valueType(code) {
	case typeString:
		var s string
		if s, err = t.readString(); err == nil {
			if t.decode != nil {
				s = t.decode(s)
			}
			value = core.NewStringValue(s)
		}
	case typeFloat:
		var b []byte
		if b, err = t.take(8); err == nil {
			value = core.NewFloatValue(math.Float64frombits(binary.LittleEndian.Uint64(b)))
		}
	case typeInt16:
		var b []byte
		if b, err = t.take(2); err == nil {
			value = core.NewIntegerValue(int(int16(binary.LittleEndian.Uint16(b))))
		}
	case typeInt32:
		var b []byte
		if b, err = t.take(4); err == nil {
			value = core.NewIntegerValue(int(int32(binary.LittleEndian.Uint32(b))))
		}
	case typeInt64:
		var b []byte
		if b, err = t.take(8); err == nil {
			value = core.NewIntegerValue(int(int64(binary.LittleEndian.Uint64(b))))
		}
	case typeBool:
		var b []byte
		if b, err = t.take(1); err == nil {
			value = core.NewIntegerValue(int(b[0]))
		}
	case typeChunk:
		var b []byte
		if b, err = t.take(1); err == nil {
			if b, err = t.take(int(b[0])); err == nil {
				value = core.NewStringValue(fmt.Sprintf("%X", b))
			}
		}
	default:
		return nil, fmt.Errorf("%w: offset %d: unknown group code %d", ErrMalformed, t.pos, code)
	}
	if err != nil {
		return nil, err
	}

	return core.NewTag(code, value), nil
}

func (t *binaryTokenizer) readCode() (int, error) {
	if t.wide {
		b, err := t.take(2)
		if err != nil {
			return 0, err
		}
		return int(binary.LittleEndian.Uint16(b)), nil
	}

	b, err := t.take(1)
	if err != nil {
		return 0, err
	}
	if b[0] != 255 {
		return int(b[0]), nil
	}
	// extended code
	b, err = t.take(2)
	if err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint16(b)), nil
}

func (t *binaryTokenizer) readString() (string, error) {
	end := bytes.IndexByte(t.data[t.pos:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: offset %d: unterminated string", ErrMalformed, t.pos)
	}
	s := string(t.data[t.pos : t.pos+end])
	t.pos += end + 1
	return s, nil
}

func (t *binaryTokenizer) take(n int) ([]byte, error) {
	if t.pos+n > len(t.data) {
		return nil, fmt.Errorf("%w: offset %d: truncated value", ErrMalformed, t.pos)
	}
	b := t.data[t.pos : t.pos+n]
	t.pos += n
	return b, nil
}

type groupType int

const (
	typeUnknown groupType = iota
	typeString
	typeFloat
	typeInt16
	typeInt32
	typeInt64
	typeBool
	typeChunk
)

// valueType maps a group code to its binary value type.
func valueType(code int) groupType {
	switch {
	case code >= 0 && code <= 9:
		return typeString
	case code >= 10 && code <= 59:
		return typeFloat
	case code >= 60 && code <= 79:
		return typeInt16
	case code >= 90 && code <= 99:
		return typeInt32
	case code >= 100 && code <= 109:
		return typeString
	case code >= 110 && code <= 149:
		return typeFloat
	case code >= 160 && code <= 169:
		return typeInt64
	case code >= 170 && code <= 179:
		return typeInt16
	case code >= 210 && code <= 239:
		return typeFloat
	case code >= 270 && code <= 289:
		return typeInt16
	case code >= 290 && code <= 299:
		return typeBool
	case code >= 310 && code <= 319:
		return typeChunk
	case code >= 300 && code <= 369:
		return typeString
	case code >= 370 && code <= 389:
		return typeInt16
	case code >= 390 && code <= 399:
		return typeString
	case code >= 400 && code <= 409:
		return typeInt16
	case code >= 410 && code <= 419:
		return typeString
	case code >= 420 && code <= 429:
		return typeInt32
	case code >= 430 && code <= 439:
		return typeString
	case code >= 440 && code <= 459:
		return typeInt32
	case code >= 460 && code <= 469:
		return typeFloat
	case code >= 470 && code <= 481:
		return typeString
	case code == 999:
		return typeString
	case code == 1004:
		return typeChunk
	case code >= 1000 && code <= 1009:
		return typeString
	case code >= 1010 && code <= 1059:
		return typeFloat
	case code >= 1060 && code <= 1070:
		return typeInt16
	case code == 1071:
		return typeInt32
	default:
		return typeUnknown
	}
}
