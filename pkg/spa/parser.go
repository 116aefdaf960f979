// ABOUTME: POD parser for negotiated parameters
// ABOUTME: Decodes objects and resolves choice values to their defaults
package spa

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when a blob ends before a pod does
	ErrTruncated = errors.New("spa: truncated pod")

	// ErrUnexpectedType is returned when a pod has a different type than requested
	ErrUnexpectedType = errors.New("spa: unexpected pod type")
)

// Pod is a decoded pod header with its (unpadded) body
type Pod struct {
	Type uint32
	Body []byte
}

// Prop is one property of a parsed object
type Prop struct {
	Key   uint32
	Flags uint32
	Value Pod
}

// ParsedObject is a decoded POD object
type ParsedObject struct {
	Type  uint32
	ID    uint32
	Props []Prop
}

// ReadPod decodes one pod from data and returns it with the bytes that
// follow it. Trailing padding is consumed when present.
func ReadPod(data []byte) (Pod, []byte, error) {
	if len(data) < headerSize {
		return Pod{}, nil, fmt.Errorf("%w: need %d header bytes, have %d", ErrTruncated, headerSize, len(data))
	}
	size := binary.LittleEndian.Uint32(data[0:4])
	typ := binary.LittleEndian.Uint32(data[4:8])
	rest := data[headerSize:]
	if uint64(size) > uint64(len(rest)) {
		return Pod{}, nil, fmt.Errorf("%w: body of %d bytes, have %d", ErrTruncated, size, len(rest))
	}
	pod := Pod{Type: typ, Body: rest[:size]}
	skip := padded(int(size))
	if skip > len(rest) {
		skip = len(rest)
	}
	return pod, rest[skip:], nil
}

// ParseObject decodes a blob holding a single object pod
func ParseObject(data []byte) (*ParsedObject, error) {
	pod, _, err := ReadPod(data)
	if err != nil {
		return nil, err
	}
	if pod.Type != TypeObject {
		return nil, fmt.Errorf("%w: want object, got %d", ErrUnexpectedType, pod.Type)
	}
	if len(pod.Body) < 8 {
		return nil, fmt.Errorf("%w: object body of %d bytes", ErrTruncated, len(pod.Body))
	}

	obj := &ParsedObject{
		Type: binary.LittleEndian.Uint32(pod.Body[0:4]),
		ID:   binary.LittleEndian.Uint32(pod.Body[4:8]),
	}
	rest := pod.Body[8:]
	for len(rest) > 0 {
		if len(rest) < 8 {
			return nil, fmt.Errorf("%w: property header", ErrTruncated)
		}
		key := binary.LittleEndian.Uint32(rest[0:4])
		flags := binary.LittleEndian.Uint32(rest[4:8])
		value, next, err := ReadPod(rest[8:])
		if err != nil {
			return nil, fmt.Errorf("property %#x: %w", key, err)
		}
		obj.Props = append(obj.Props, Prop{Key: key, Flags: flags, Value: value})
		rest = next
	}
	return obj, nil
}

// Prop returns the value of the property with the given key
func (o *ParsedObject) Prop(key uint32) (Pod, bool) {
	for _, p := range o.Props {
		if p.Key == key {
			return p.Value, true
		}
	}
	return Pod{}, false
}

// Resolve returns the default value of a Choice pod, or the pod itself
func (p Pod) Resolve() (Pod, error) {
	if p.Type != TypeChoice {
		return p, nil
	}
	if len(p.Body) < 16 {
		return Pod{}, fmt.Errorf("%w: choice body of %d bytes", ErrTruncated, len(p.Body))
	}
	childSize := binary.LittleEndian.Uint32(p.Body[8:12])
	childType := binary.LittleEndian.Uint32(p.Body[12:16])
	values := p.Body[16:]
	if childSize == 0 || uint64(childSize) > uint64(len(values)) {
		return Pod{}, fmt.Errorf("%w: choice without a default value", ErrTruncated)
	}
	return Pod{Type: childType, Body: values[:childSize]}, nil
}

// ID returns the value of an Id pod (or the default of an Id choice)
func (p Pod) ID() (uint32, error) {
	return p.scalar32(TypeID)
}

// Int returns the value of an Int pod (or the default of an Int choice)
func (p Pod) Int() (int32, error) {
	v, err := p.scalar32(TypeInt)
	return int32(v), err
}

// IDs returns the elements of an Array of Ids
func (p Pod) IDs() ([]uint32, error) {
	if p.Type != TypeArray {
		return nil, fmt.Errorf("%w: want array, got %d", ErrUnexpectedType, p.Type)
	}
	if len(p.Body) < headerSize {
		return nil, fmt.Errorf("%w: array child header", ErrTruncated)
	}
	childSize := binary.LittleEndian.Uint32(p.Body[0:4])
	childType := binary.LittleEndian.Uint32(p.Body[4:8])
	if childType != TypeID || childSize != 4 {
		return nil, fmt.Errorf("%w: array of %d (size %d)", ErrUnexpectedType, childType, childSize)
	}
	elems := p.Body[headerSize:]
	out := make([]uint32, 0, len(elems)/4)
	for i := 0; i+4 <= len(elems); i += 4 {
		out = append(out, binary.LittleEndian.Uint32(elems[i:i+4]))
	}
	return out, nil
}

func (p Pod) scalar32(want uint32) (uint32, error) {
	v, err := p.Resolve()
	if err != nil {
		return 0, err
	}
	if v.Type != want {
		return 0, fmt.Errorf("%w: want %d, got %d", ErrUnexpectedType, want, v.Type)
	}
	if len(v.Body) < 4 {
		return 0, fmt.Errorf("%w: scalar body of %d bytes", ErrTruncated, len(v.Body))
	}
	return binary.LittleEndian.Uint32(v.Body[0:4]), nil
}
