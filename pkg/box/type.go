// Package box parses and serializes the JP2/JPX box container.
//
// Each box on disk is:
//   - 4-byte length (0 runs to the end of the enclosing range, 1 means an
//     8-byte extended length follows the type)
//   - 4-byte type code
//   - optional 8-byte extended length
//   - payload, which for superboxes is itself a sequence of boxes
package box

import (
	"encoding/binary"
	"strings"
)

// Type is a 4-byte box type code
type Type uint32

// Box type codes
const (
	TypeSignature Type = 0x6A502020 // "jP  "
	TypeFileType  Type = 0x66747970 // "ftyp"

	TypeJP2Header       Type = 0x6A703268 // "jp2h"
	TypeImageHeader     Type = 0x69686472 // "ihdr"
	TypeBitsPerComp     Type = 0x62706363 // "bpcc"
	TypeColourSpec      Type = 0x636F6C72 // "colr"
	TypePalette         Type = 0x70636C72 // "pclr"
	TypeComponentMap    Type = 0x636D6170 // "cmap"
	TypeChannelDef      Type = 0x63646566 // "cdef"
	TypeResolution      Type = 0x72657320 // "res "
	TypeCaptureRes      Type = 0x72657363 // "resc"
	TypeDisplayRes      Type = 0x72657364 // "resd"
	TypeCodestream      Type = 0x6A703263 // "jp2c"
	TypeIPR             Type = 0x6A703269 // "jp2i"
	TypeCodestreamHdr   Type = 0x6A706368 // "jpch"
	TypeCompositingHdr  Type = 0x6A706C68 // "jplh"
	TypeColourGroup     Type = 0x63677270 // "cgrp"
	TypeXML             Type = 0x786D6C20 // "xml "
	TypeUUID            Type = 0x75756964 // "uuid"
	TypeUUIDInfo        Type = 0x75696E66 // "uinf"
	TypeUUIDList        Type = 0x756C7374 // "ulst"
	TypeURL             Type = 0x75726C20 // "url "
	TypeAssociation     Type = 0x61736F63 // "asoc"
	TypeLabel           Type = 0x6C626C20 // "lbl "
	TypeNumberList      Type = 0x6E6C7374 // "nlst"
	TypeReaderReqs      Type = 0x72726571 // "rreq"
	TypeFragmentTable   Type = 0x6674626C // "ftbl"
	TypeFragmentList    Type = 0x666C7374 // "flst"
	TypeDataReference   Type = 0x6474626C // "dtbl"
	TypeFree            Type = 0x66726565 // "free"
)

// TypeOf packs a 4-character code. Short codes are padded with spaces.
func TypeOf(code string) Type {
	if len(code) < 4 {
		code += strings.Repeat(" ", 4-len(code))
	}
	return Type(binary.BigEndian.Uint32([]byte(code[:4])))
}

// String returns the 4-character type code
func (t Type) String() string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(t))
	return string(b)
}

// MarshalText renders the type as its 4-character code
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
