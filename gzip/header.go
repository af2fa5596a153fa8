package gzip

import "github.com/tobozo/go-targz/errcode"

const (
	id1           = 0x1f
	id2           = 0x8b
	methodDeflate = 8

	flagText    = 1 << 0
	flagHdrCRC  = 1 << 1
	flagExtra   = 1 << 2
	flagName    = 1 << 3
	flagComment = 1 << 4
)

// Header mirrors the subset of RFC 1952's member header format:
// a filename, an optional comment, and the modification time, everything
// else (OS, XFL, extra fields) is fixed to a constant "unknown" value to
// keep the writer deterministic.
type Header struct {
	Name    string
	Comment string
	ModTime uint32 // seconds since Unix epoch, 0 = not set (RFC 1952 §2.3.1)
}

func validateMagic(b []byte) error {
	if len(b) < 3 || b[0] != id1 || b[1] != id2 || b[2] != methodDeflate {
		return errcode.New(errcode.InvalidFile)
	}
	return nil
}
