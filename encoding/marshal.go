// Package encoding converts arbitrary objects into byte slices, and vice
// versa. It also contains helper functions for reading and writing length-
// prefixed data.
//
// Encoding rules: booleans, and the elements of byte slices and byte arrays,
// encode as a single byte; unsigned and signed integers of any width
// (including a lone uint8) encode as 8 little-endian bytes; strings and
// slices encode as an 8-byte length prefix followed by their contents;
// pointers encode as a single bool (valid or not) followed by the pointee,
// if valid; and structs encode as the concatenation of their fields, in
// order. Any type implementing ChfsMarshaler/ChfsUnmarshaler takes over its
// own encoding entirely.
package encoding

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
)

const (
	// MaxObjectSize is the largest object Decode will accept, in bytes.
	MaxObjectSize = 12e6

	// MaxSliceSize is the largest slice or string length prefix Decode will
	// honor before allocating, in bytes.
	MaxSliceSize = 5e6
)

var errBadPointer = errors.New("cannot decode into invalid pointer")

// ErrObjectTooLarge reports that a decode exceeded MaxObjectSize.
type ErrObjectTooLarge uint64

func (e ErrObjectTooLarge) Error() string {
	return fmt.Sprintf("encoded object (>= %v bytes) exceeds size limit (%v bytes)", uint64(e), uint64(MaxObjectSize))
}

// ErrSliceTooLarge reports that a decoded length prefix, multiplied by its
// element size, exceeds MaxSliceSize.
type ErrSliceTooLarge struct {
	Len      uint64
	ElemSize uint64
}

func (e ErrSliceTooLarge) Error() string {
	return fmt.Sprintf("encoded slice (%v*%v bytes) exceeds size limit (%v bytes)", e.Len, e.ElemSize, uint64(MaxSliceSize))
}

// A ChfsMarshaler takes over its own wire encoding instead of going through
// the reflection-driven struct walk.
type ChfsMarshaler interface {
	MarshalChfs(io.Writer) error
}

// A ChfsUnmarshaler is the decoding half of ChfsMarshaler.
type ChfsUnmarshaler interface {
	UnmarshalChfs(io.Reader) error
}

// An Encoder streams the wire encoding of a sequence of objects to an
// underlying io.Writer. Once a Write fails, every subsequent method becomes
// a no-op and returns the same error; callers can therefore chain several
// writes and check Err() once at the end instead of after every call.
type Encoder struct {
	w   io.Writer
	buf [8]byte
	err error
}

// NewEncoder wraps w in an Encoder, or returns w unchanged if it already is
// one.
func NewEncoder(w io.Writer) *Encoder {
	if e, ok := w.(*Encoder); ok {
		return e
	}
	return &Encoder{w: w}
}

// Write implements io.Writer, latching the first error it sees.
func (e *Encoder) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	var n int
	n, e.err = e.w.Write(p)
	if n != len(p) && e.err == nil {
		e.err = io.ErrShortWrite
	}
	return n, e.err
}

// WriteByte implements io.ByteWriter.
func (e *Encoder) WriteByte(b byte) error {
	e.buf[0] = b
	e.Write(e.buf[:1])
	return e.err
}

// WriteBool writes a single byte, 1 for true and 0 for false.
func (e *Encoder) WriteBool(b bool) error {
	if b {
		return e.WriteByte(1)
	}
	return e.WriteByte(0)
}

// WriteUint64 writes u as 8 little-endian bytes.
func (e *Encoder) WriteUint64(u uint64) error {
	copy(e.buf[:8], EncUint64(u))
	e.Write(e.buf[:8])
	return e.err
}

// WriteInt writes i as a uint64, negative values wrapping per two's
// complement.
func (e *Encoder) WriteInt(i int) error {
	return e.WriteUint64(uint64(i))
}

// WritePrefixedBytes writes p's length as a uint64 followed by p itself.
func (e *Encoder) WritePrefixedBytes(p []byte) error {
	e.WriteInt(len(p))
	e.Write(p)
	return e.err
}

// Err reports the first write error the Encoder has seen, if any.
func (e *Encoder) Err() error {
	return e.err
}

// Encode writes the wire encoding of v.
func (e *Encoder) Encode(v interface{}) error {
	return e.encode(reflect.ValueOf(v))
}

// EncodeAll encodes each of vs in turn, stopping at the first error.
func (e *Encoder) EncodeAll(vs ...interface{}) error {
	for _, v := range vs {
		if err := e.Encode(v); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encode(val reflect.Value) error {
	if e.err != nil {
		return e.err
	}
	if val.CanInterface() {
		if m, ok := val.Interface().(ChfsMarshaler); ok {
			return m.MarshalChfs(e.w)
		}
	}

	switch val.Kind() {
	case reflect.Ptr:
		return e.encodePtr(val)
	case reflect.Bool:
		return e.WriteBool(val.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.WriteUint64(uint64(val.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return e.WriteUint64(val.Uint())
	case reflect.String:
		return e.WritePrefixedBytes([]byte(val.String()))
	case reflect.Slice, reflect.Array:
		return e.encodeSliceOrArray(val)
	case reflect.Struct:
		return e.encodeStruct(val)
	}

	// A type reaching here (map, chan, func, unexported field, ...) has no
	// defined wire form; that's a programming error, not a runtime one.
	panic("could not marshal type " + val.Type().String())
}

func (e *Encoder) encodePtr(val reflect.Value) error {
	if err := e.WriteBool(!val.IsNil()); err != nil {
		return err
	}
	if val.IsNil() {
		return nil
	}
	return e.encode(val.Elem())
}

func (e *Encoder) encodeSliceOrArray(val reflect.Value) error {
	if val.Kind() == reflect.Slice {
		if err := e.WriteInt(val.Len()); err != nil {
			return err
		}
		if val.Len() == 0 {
			return nil
		}
	}
	if val.Type().Elem().Kind() == reflect.Uint8 {
		return e.encodeByteSlice(val)
	}
	for i := 0; i < val.Len(); i++ {
		if err := e.encode(val.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

// encodeByteSlice writes a []byte/[N]byte in one Write instead of one
// WriteByte per element.
func (e *Encoder) encodeByteSlice(val reflect.Value) error {
	if val.CanAddr() {
		_, err := e.Write(val.Slice(0, val.Len()).Bytes())
		return err
	}
	// Unaddressable arrays (e.g. a literal passed by value) need a copy
	// before Bytes() can be called on them.
	cp := reflect.MakeSlice(reflect.SliceOf(val.Type().Elem()), val.Len(), val.Len())
	reflect.Copy(cp, val)
	_, err := e.Write(cp.Bytes())
	return err
}

func (e *Encoder) encodeStruct(val reflect.Value) error {
	for i := 0; i < val.NumField(); i++ {
		if err := e.encode(val.Field(i)); err != nil {
			return err
		}
	}
	return nil
}

// Marshal returns the wire encoding of v.
func Marshal(v interface{}) []byte {
	b := new(bytes.Buffer)
	NewEncoder(b).Encode(v) // Encoder never errors against a bytes.Buffer
	return b.Bytes()
}

// MarshalAll concatenates the wire encoding of each of vs.
func MarshalAll(vs ...interface{}) []byte {
	b := new(bytes.Buffer)
	_ = NewEncoder(b).EncodeAll(vs...)
	return b.Bytes()
}

// WriteFile encodes v and writes it to filename, creating the file if it
// does not already exist.
func WriteFile(filename string, v interface{}) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := NewEncoder(file).Encode(v); err != nil {
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	return nil
}

// A Decoder reads a sequence of wire-encoded objects from an underlying
// io.Reader, enforcing MaxObjectSize/MaxSliceSize as it goes. Like Encoder,
// a Decoder latches its first error and every later method becomes a
// no-op.
type Decoder struct {
	r   io.Reader
	buf [8]byte
	err error
	n   int // bytes read by the object currently being decoded
}

// NewDecoder wraps r in a Decoder, or returns r unchanged if it already is
// one.
func NewDecoder(r io.Reader) *Decoder {
	if d, ok := r.(*Decoder); ok {
		return d
	}
	return &Decoder{r: r}
}

// Read implements io.Reader, tracking the running total against
// MaxObjectSize.
func (d *Decoder) Read(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	var n int
	n, d.err = d.r.Read(p)
	d.accumulate(n)
	return n, d.err
}

func (d *Decoder) accumulate(n int) {
	d.n += n
	if d.n > MaxObjectSize {
		d.err = ErrObjectTooLarge(d.n)
	}
}

// ReadFull fills p completely or latches an error.
func (d *Decoder) ReadFull(p []byte) {
	if d.err != nil {
		return
	}
	n, err := io.ReadFull(d.r, p)
	d.accumulate(n)
	if err != nil {
		d.err = err
	}
}

// ReadPrefixedBytes reads a uint64 length prefix and that many bytes. A
// prefix whose declared length would exceed MaxSliceSize latches an error
// and returns nil without allocating.
func (d *Decoder) ReadPrefixedBytes() []byte {
	n := d.NextPrefix(1)
	if d.err != nil {
		return nil
	}
	if buf, ok := d.r.(*bytes.Buffer); ok {
		b := buf.Next(int(n))
		d.accumulate(len(b))
		if len(b) < int(n) {
			d.err = io.ErrUnexpectedEOF
			return nil
		}
		return b
	}
	b := make([]byte, n)
	d.ReadFull(b)
	if d.err != nil {
		return nil
	}
	return b
}

// NextUint64 reads the next 8 bytes as a little-endian uint64.
func (d *Decoder) NextUint64() uint64 {
	d.ReadFull(d.buf[:8])
	if d.err != nil {
		return 0
	}
	return DecUint64(d.buf[:])
}

// NextBool reads the next byte as a bool, latching an error if it isn't 0
// or 1.
func (d *Decoder) NextBool() bool {
	d.ReadFull(d.buf[:1])
	if d.buf[0] > 1 && d.err == nil {
		d.err = errors.New("boolean value was not 0 or 1")
	}
	return d.buf[0] == 1
}

// NextPrefix reads a length prefix via NextUint64, additionally latching
// ErrSliceTooLarge if n*elemSize would exceed MaxSliceSize.
func (d *Decoder) NextPrefix(elemSize uintptr) uint64 {
	n := d.NextUint64()
	if n > 1<<31-1 || n*uint64(elemSize) > MaxSliceSize {
		d.err = ErrSliceTooLarge{Len: n, ElemSize: uint64(elemSize)}
		return 0
	}
	return n
}

// Err reports the first read or decode error the Decoder has seen, if any.
func (d *Decoder) Err() error {
	return d.err
}

// Decode reads the next wire-encoded value and stores it in v, which must
// be a non-nil pointer. Decoding never returns a partially-populated v:
// any failure, including a panic deep in a custom UnmarshalChfs
// implementation, surfaces as a plain error.
func (d *Decoder) Decode(v interface{}) (err error) {
	pval := reflect.ValueOf(v)
	if pval.Kind() != reflect.Ptr || pval.IsNil() {
		return errBadPointer
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("could not decode type %s: %v", pval.Elem().Type().String(), r)
		}
	}()

	d.n = 0
	d.decode(pval.Elem())
	return
}

// DecodeAll decodes each of vs in turn, stopping at the first error.
func (d *Decoder) DecodeAll(vs ...interface{}) error {
	for _, v := range vs {
		if err := d.Decode(v); err != nil {
			return err
		}
	}
	return nil
}

// decode panics on any error so that deeply-nested struct/slice recursion
// doesn't need to thread errors back up by hand; Decode recovers the panic
// at the top level.
func (d *Decoder) decode(val reflect.Value) {
	if val.CanAddr() && val.Addr().CanInterface() {
		if u, ok := val.Addr().Interface().(ChfsUnmarshaler); ok {
			if err := u.UnmarshalChfs(d.r); err != nil {
				panic(err)
			}
			return
		}
	}

	switch val.Kind() {
	case reflect.Ptr:
		d.decodePtr(val)
	case reflect.Bool:
		val.SetBool(d.NextBool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		val.SetInt(int64(d.NextUint64()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		val.SetUint(d.NextUint64())
	case reflect.String:
		val.SetString(string(d.ReadPrefixedBytes()))
	case reflect.Slice:
		d.decodeSlice(val)
	case reflect.Array:
		d.decodeArrayOrSlice(val)
	case reflect.Struct:
		for i := 0; i < val.NumField(); i++ {
			d.decode(val.Field(i))
		}
	default:
		panic("unknown type")
	}

	if d.err != nil {
		panic(d.err)
	}
}

func (d *Decoder) decodePtr(val reflect.Value) {
	if !d.NextBool() {
		return
	}
	if val.IsNil() {
		val.Set(reflect.New(val.Type().Elem()))
	}
	d.decode(val.Elem())
}

func (d *Decoder) decodeSlice(val reflect.Value) {
	n := d.NextPrefix(val.Type().Elem().Size())
	if n == 0 {
		return
	}
	val.Set(reflect.MakeSlice(val.Type(), int(n), int(n)))
	d.decodeArrayOrSlice(val)
}

func (d *Decoder) decodeArrayOrSlice(val reflect.Value) {
	if val.Type().Elem().Kind() == reflect.Uint8 {
		d.ReadFull(val.Slice(0, val.Len()).Bytes())
		return
	}
	for i := 0; i < val.Len(); i++ {
		d.decode(val.Index(i))
	}
}

// Unmarshal decodes b and stores the result in v, which must be a non-nil
// pointer.
func Unmarshal(b []byte, v interface{}) error {
	return NewDecoder(bytes.NewBuffer(b)).Decode(v)
}

// UnmarshalAll decodes the concatenated wire encoding in b into vs, in
// order.
func UnmarshalAll(b []byte, vs ...interface{}) error {
	return NewDecoder(bytes.NewBuffer(b)).DecodeAll(vs...)
}

// ReadFile decodes the contents of filename into v.
func ReadFile(filename string, v interface{}) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("reading %s: %w", filename, err)
	}
	return nil
}
