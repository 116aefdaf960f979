// ABOUTME: Structured builder for POD objects
// ABOUTME: Pairs every property key with a typed value and handles padding
package spa

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDuplicateKey is returned by Encode when a property key was added twice
	ErrDuplicateKey = errors.New("spa: duplicate property key")

	// ErrEmptyChoice is returned by Encode when a choice carries no values
	ErrEmptyChoice = errors.New("spa: choice without values")
)

const (
	headerSize = 8
	podAlign   = 8
)

type property struct {
	key   uint32
	flags uint32
	typ   uint32
	body  []byte
}

// Object builds a POD object. Methods record the first error and return the
// receiver so calls can be chained; the error surfaces from Encode.
type Object struct {
	objectType uint32
	id         uint32
	props      []property
	err        error
}

// NewObject starts an object of the given object type and parameter id
func NewObject(objectType, id uint32) *Object {
	return &Object{objectType: objectType, id: id}
}

// ID adds an Id property
func (o *Object) ID(key, value uint32) *Object {
	return o.add(key, TypeID, le32(value))
}

// Int adds an Int property
func (o *Object) Int(key uint32, value int32) *Object {
	return o.add(key, TypeInt, le32(uint32(value)))
}

// Long adds a Long property
func (o *Object) Long(key uint32, value int64) *Object {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint64(body, uint64(value))
	return o.add(key, TypeLong, body)
}

// Bool adds a Bool property
func (o *Object) Bool(key uint32, value bool) *Object {
	var v uint32
	if value {
		v = 1
	}
	return o.add(key, TypeBool, le32(v))
}

// Float adds a Float property
func (o *Object) Float(key uint32, value float32) *Object {
	return o.add(key, TypeFloat, le32(math.Float32bits(value)))
}

// IDArray adds an Array property whose elements are Ids
func (o *Object) IDArray(key uint32, values []uint32) *Object {
	body := make([]byte, 0, headerSize+4*len(values))
	body = append(body, le32(4)...)
	body = append(body, le32(TypeID)...)
	for _, v := range values {
		body = append(body, le32(v)...)
	}
	return o.add(key, TypeArray, body)
}

// ChoiceInt adds a Choice of Int values. The first value is the default;
// for ChoiceRange the remaining two are min and max.
func (o *Object) ChoiceInt(key, kind uint32, values ...int32) *Object {
	if len(values) == 0 {
		if o.err == nil {
			o.err = fmt.Errorf("%w (key %#x)", ErrEmptyChoice, key)
		}
		return o
	}
	body := make([]byte, 0, 16+4*len(values))
	body = append(body, le32(kind)...)
	body = append(body, le32(0)...)
	body = append(body, le32(4)...)
	body = append(body, le32(TypeInt)...)
	for _, v := range values {
		body = append(body, le32(uint32(v))...)
	}
	return o.add(key, TypeChoice, body)
}

func (o *Object) add(key, typ uint32, body []byte) *Object {
	if o.err != nil {
		return o
	}
	for _, p := range o.props {
		if p.key == key {
			o.err = fmt.Errorf("%w (key %#x)", ErrDuplicateKey, key)
			return o
		}
	}
	o.props = append(o.props, property{key: key, typ: typ, body: body})
	return o
}

// Encode serializes the object
func (o *Object) Encode() ([]byte, error) {
	if o.err != nil {
		return nil, o.err
	}

	size := 8 // object type + id
	for _, p := range o.props {
		size += 8 + headerSize + padded(len(p.body))
	}

	out := make([]byte, 0, headerSize+size)
	out = append(out, le32(uint32(size))...)
	out = append(out, le32(TypeObject)...)
	out = append(out, le32(o.objectType)...)
	out = append(out, le32(o.id)...)
	for _, p := range o.props {
		out = append(out, le32(p.key)...)
		out = append(out, le32(p.flags)...)
		out = append(out, le32(uint32(len(p.body)))...)
		out = append(out, le32(p.typ)...)
		out = append(out, p.body...)
		out = append(out, make([]byte, padded(len(p.body))-len(p.body))...)
	}
	return out, nil
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func padded(n int) int {
	return (n + podAlign - 1) &^ (podAlign - 1)
}
