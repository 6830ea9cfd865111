package freq

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

const (
	maxKeyLen = 16
	// maxDecodeAlphabet bounds the trigram cube allocated while decoding.
	maxDecodeAlphabet = 128
)

// Tables are serialized as a msgpack map:
//
//	{"alphabet": str, "chars": [uint], "bigrams": [uint], "trigrams": [uint]}
//
// Skipgrams and hit counts are derived again on decode.

// Encode writes the tables to w.
func (t *Tables) Encode(w io.Writer) error {
	enc := msgpackEncoder{w: bufio.NewWriter(w)}
	enc.writeMapHeader(4)
	enc.writeString("alphabet")
	enc.writeString(string(t.alphabet))
	enc.writeString("chars")
	enc.writeUintArray(t.chars)
	enc.writeString("bigrams")
	enc.writeUintArray(t.bigrams)
	enc.writeString("trigrams")
	enc.writeUintArray(t.trigrams)
	if enc.err != nil {
		return enc.err
	}
	return enc.w.Flush()
}

// Decode reads tables written by Encode.
func Decode(r io.Reader) (*Tables, error) {
	dec := msgpackDecoder{r: bufio.NewReader(r)}
	length, err := dec.readMapHeader()
	if err != nil {
		return nil, err
	}
	var (
		t                        *Tables
		chars, bigrams, trigrams []uint64
	)
	for i := 0; i < length; i++ {
		key, err := dec.readString(maxKeyLen)
		if err != nil {
			return nil, err
		}
		if key != "alphabet" && t == nil {
			return nil, fmt.Errorf("key %q before alphabet", key)
		}
		switch key {
		case "alphabet":
			if t != nil {
				return nil, fmt.Errorf("duplicate alphabet")
			}
			alphabet, err := dec.readString(maxDecodeAlphabet * utf8.UTFMax)
			if err != nil {
				return nil, err
			}
			runes := []rune(alphabet)
			if len(runes) > maxDecodeAlphabet {
				return nil, fmt.Errorf("alphabet of %d runes exceeds %d", len(runes), maxDecodeAlphabet)
			}
			if t, err = New(runes); err != nil {
				return nil, err
			}
		case "chars":
			chars, err = dec.readUintArray(t.Size())
		case "bigrams":
			bigrams, err = dec.readUintArray(t.Size() * t.Size())
		case "trigrams":
			trigrams, err = dec.readUintArray(t.Size() * t.Size() * t.Size())
		default:
			err = fmt.Errorf("unexpected key %q", key)
		}
		if err != nil {
			return nil, err
		}
	}
	if t == nil {
		return nil, ErrEmptyAlphabet
	}

	n := t.Size()
	if len(chars) != n || len(bigrams) != n*n || len(trigrams) != n*n*n {
		return nil, fmt.Errorf("table sizes do not match alphabet of %d", n)
	}
	copy(t.chars, chars)
	copy(t.bigrams, bigrams)
	copy(t.trigrams, trigrams)
	t.Finalize()
	return t, nil
}

type msgpackEncoder struct {
	w   *bufio.Writer
	err error
}

func (e *msgpackEncoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

func (e *msgpackEncoder) writeMapHeader(length int) {
	if length <= 0x0f {
		e.write([]byte{0x80 | byte(length)})
		return
	}
	var buf [5]byte
	buf[0] = 0xdf
	binary.BigEndian.PutUint32(buf[1:], uint32(length))
	e.write(buf[:])
}

func (e *msgpackEncoder) writeString(s string) {
	length := len(s)
	switch {
	case length <= 0x1f:
		e.write([]byte{0xa0 | byte(length)})
	case length <= math.MaxUint8:
		e.write([]byte{0xd9, byte(length)})
	case length <= math.MaxUint16:
		var buf [3]byte
		buf[0] = 0xda
		binary.BigEndian.PutUint16(buf[1:], uint16(length))
		e.write(buf[:])
	default:
		var buf [5]byte
		buf[0] = 0xdb
		binary.BigEndian.PutUint32(buf[1:], uint32(length))
		e.write(buf[:])
	}
	e.write([]byte(s))
}

func (e *msgpackEncoder) writeUintArray(values []uint64) {
	length := len(values)
	switch {
	case length <= 0x0f:
		e.write([]byte{0x90 | byte(length)})
	case length <= math.MaxUint16:
		var buf [3]byte
		buf[0] = 0xdc
		binary.BigEndian.PutUint16(buf[1:], uint16(length))
		e.write(buf[:])
	default:
		var buf [5]byte
		buf[0] = 0xdd
		binary.BigEndian.PutUint32(buf[1:], uint32(length))
		e.write(buf[:])
	}
	for _, v := range values {
		e.writeUint(v)
	}
}

func (e *msgpackEncoder) writeUint(v uint64) {
	switch {
	case v <= 0x7f:
		e.write([]byte{byte(v)})
	case v <= math.MaxUint8:
		e.write([]byte{0xcc, byte(v)})
	case v <= math.MaxUint16:
		var buf [3]byte
		buf[0] = 0xcd
		binary.BigEndian.PutUint16(buf[1:], uint16(v))
		e.write(buf[:])
	case v <= math.MaxUint32:
		var buf [5]byte
		buf[0] = 0xce
		binary.BigEndian.PutUint32(buf[1:], uint32(v))
		e.write(buf[:])
	default:
		var buf [9]byte
		buf[0] = 0xcf
		binary.BigEndian.PutUint64(buf[1:], v)
		e.write(buf[:])
	}
}

type msgpackDecoder struct {
	r *bufio.Reader
}

func (d *msgpackDecoder) readMapHeader() (int, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch {
	case b >= 0x80 && b <= 0x8f:
		return int(b & 0x0f), nil
	case b == 0xde:
		n, err := d.readUint16()
		return int(n), err
	case b == 0xdf:
		n, err := d.readUint32()
		return int(n), err
	default:
		return 0, fmt.Errorf("expected msgpack map, got prefix 0x%x", b)
	}
}

// readString reads a string of at most limit bytes.
func (d *msgpackDecoder) readString(limit int) (string, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return "", err
	}
	var length int
	switch {
	case b >= 0xa0 && b <= 0xbf:
		length = int(b & 0x1f)
	case b == 0xd9:
		n, err := d.r.ReadByte()
		if err != nil {
			return "", err
		}
		length = int(n)
	case b == 0xda:
		n, err := d.readUint16()
		if err != nil {
			return "", err
		}
		length = int(n)
	case b == 0xdb:
		n, err := d.readUint32()
		if err != nil {
			return "", err
		}
		length = int(n)
	default:
		return "", fmt.Errorf("expected msgpack string, got prefix 0x%x", b)
	}
	if length > limit {
		return "", fmt.Errorf("string of %d bytes exceeds %d", length, limit)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// readUintArray reads an array that must hold exactly want values.
func (d *msgpackDecoder) readUintArray(want int) ([]uint64, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	var length int
	switch {
	case b >= 0x90 && b <= 0x9f:
		length = int(b & 0x0f)
	case b == 0xdc:
		n, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		length = int(n)
	case b == 0xdd:
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		length = int(n)
	default:
		return nil, fmt.Errorf("expected msgpack array, got prefix 0x%x", b)
	}
	if length != want {
		return nil, fmt.Errorf("array of %d values, want %d", length, want)
	}
	out := make([]uint64, length)
	for i := range out {
		v, err := d.readUint()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (d *msgpackDecoder) readUint() (uint64, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch {
	case b <= 0x7f:
		return uint64(b), nil
	case b == 0xcc:
		v, err := d.r.ReadByte()
		return uint64(v), err
	case b == 0xcd:
		v, err := d.readUint16()
		return uint64(v), err
	case b == 0xce:
		v, err := d.readUint32()
		return uint64(v), err
	case b == 0xcf:
		return d.readUint64()
	default:
		return 0, fmt.Errorf("expected msgpack uint, got prefix 0x%x", b)
	}
}

func (d *msgpackDecoder) readUint16() (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (d *msgpackDecoder) readUint32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func (d *msgpackDecoder) readUint64() (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
