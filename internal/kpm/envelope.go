package kpm

import (
	"encoding/binary"
	"fmt"
)

// EnvelopeSize is the wire size of an Envelope.
const EnvelopeSize = 32

// Envelope is the command block a caller hands to Ioctl: four little-endian
// 64-bit words.
type Envelope struct {
	ControlCode uint64
	Arg1        uint64
	Arg2        uint64
	ResultCode  uint64
}

// MarshalBinary encodes e in wire order.
func (e Envelope) MarshalBinary() ([]byte, error) {
	b := make([]byte, EnvelopeSize)
	binary.LittleEndian.PutUint64(b[0:], e.ControlCode)
	binary.LittleEndian.PutUint64(b[8:], e.Arg1)
	binary.LittleEndian.PutUint64(b[16:], e.Arg2)
	binary.LittleEndian.PutUint64(b[24:], e.ResultCode)
	return b, nil
}

// UnmarshalBinary decodes a wire-order envelope.
func (e *Envelope) UnmarshalBinary(b []byte) error {
	if len(b) != EnvelopeSize {
		return fmt.Errorf("envelope is %d bytes, want %d", len(b), EnvelopeSize)
	}
	e.ControlCode = binary.LittleEndian.Uint64(b[0:])
	e.Arg1 = binary.LittleEndian.Uint64(b[8:])
	e.Arg2 = binary.LittleEndian.Uint64(b[16:])
	e.ResultCode = binary.LittleEndian.Uint64(b[24:])
	return nil
}
