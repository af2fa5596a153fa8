package ustar

import (
	"strconv"
	"strings"

	"github.com/tobozo/go-targz/errcode"
)

// BlockSize is the fixed ustar record length that every header and data
// block is padded to.
const BlockSize = 512

// Typeflag values from POSIX ustar, extended with the GNU/pax extensions
// a reader is expected to at least recognize and skip.
const (
	TypeRegular     byte = '0'
	TypeRegularOld  byte = 0
	TypeHardLink    byte = '1'
	TypeSymLink     byte = '2'
	TypeCharSpecial byte = '3'
	TypeBlockSpecial byte = '4'
	TypeDirectory   byte = '5'
	TypeFIFO        byte = '6'
	TypeContiguous  byte = '7'
	TypeGlobalExt   byte = 'g'
	TypeExt         byte = 'x'
)

const (
	magicUstar   = "ustar"
	versionUstar = "00"
)

// field offsets within a 512-byte ustar header record.
const (
	offName     = 0
	lenName     = 100
	offMode     = 100
	lenMode     = 8
	offUID      = 108
	lenUID      = 8
	offGID      = 116
	lenGID      = 8
	offSize     = 124
	lenSize     = 12
	offMtime    = 136
	lenMtime    = 12
	offChksum   = 148
	lenChksum   = 8
	offTypeflag = 156
	offLinkname = 157
	lenLinkname = 100
	offMagic    = 257
	lenMagic    = 6
	offVersion  = 263
	lenVersion  = 2
	offUname    = 265
	lenUname    = 32
	offGname    = 297
	lenGname    = 32
	offDevmajor = 329
	lenDevmajor = 8
	offDevminor = 337
	lenDevminor = 8
	offPrefix   = 345
	lenPrefix   = 155
)

// Header is the decoded form of one ustar header record.
type Header struct {
	Name     string
	Mode     int64
	UID      int64
	GID      int64
	Size     int64
	Mtime    int64
	Typeflag byte
	Linkname string
	Uname    string
	Gname    string
	Devmajor int64
	Devminor int64
}

// IsRegular reports whether Typeflag names a plain file, accepting both
// the POSIX '0' and the older NUL encoding TinyUntar's translate_header
// still has to tolerate.
func (h Header) IsRegular() bool {
	return h.Typeflag == TypeRegular || h.Typeflag == TypeRegularOld
}

func (h Header) IsDir() bool {
	return h.Typeflag == TypeDirectory
}

// splitPath divides path into ustar's name/prefix fields. A path that
// fits within 100 bytes goes entirely into name. Otherwise it is split
// at the last '/' such that both halves fit, mirroring the write-side
// rule POSIX ustar uses for long paths. Returns FilenameTooLong when no
// such split exists.
func splitPath(path string) (name, prefix string, err error) {
	if len(path) <= lenName {
		return path, "", nil
	}
	if len(path) > lenName+lenPrefix+1 {
		return "", "", errcode.New(errcode.FilenameTooLong)
	}
	// Search within the trailing lenName+1 bytes for a '/' that leaves a
	// valid split: prefix must fit in 155, name in 100.
	cut := -1
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] != '/' {
			continue
		}
		head := path[:i]
		tail := path[i+1:]
		if len(tail) <= lenName && len(head) <= lenPrefix {
			cut = i
			break
		}
	}
	if cut < 0 {
		return "", "", errcode.New(errcode.FilenameTooLong)
	}
	return path[cut+1:], path[:cut], nil
}

// joinPath reassembles a full archive path from a header's name and
// prefix fields.
func joinPath(name, prefix string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// marshal encodes h into a freshly zeroed 512-byte record and computes
// its checksum.
func (h Header) marshal() ([]byte, error) {
	buf := make([]byte, BlockSize)

	name, prefix, err := splitPath(h.Name)
	if err != nil {
		return nil, err
	}
	if err := putString(buf[offName:offName+lenName], name); err != nil {
		return nil, err
	}
	if err := putString(buf[offPrefix:offPrefix+lenPrefix], prefix); err != nil {
		return nil, err
	}
	if err := putOctal(buf[offMode:offMode+lenMode], h.Mode); err != nil {
		return nil, err
	}
	if err := putOctal(buf[offUID:offUID+lenUID], h.UID); err != nil {
		return nil, err
	}
	if err := putOctal(buf[offGID:offGID+lenGID], h.GID); err != nil {
		return nil, err
	}
	if err := putSize(buf[offSize:offSize+lenSize], h.Size); err != nil {
		return nil, err
	}
	if err := putOctalSpace(buf[offMtime:offMtime+lenMtime], h.Mtime); err != nil {
		return nil, err
	}
	buf[offTypeflag] = h.Typeflag
	if err := putString(buf[offLinkname:offLinkname+lenLinkname], h.Linkname); err != nil {
		return nil, err
	}
	copy(buf[offMagic:offMagic+lenMagic], magicUstar)
	copy(buf[offVersion:offVersion+lenVersion], versionUstar)
	if err := putString(buf[offUname:offUname+lenUname], h.Uname); err != nil {
		return nil, err
	}
	if err := putString(buf[offGname:offGname+lenGname], h.Gname); err != nil {
		return nil, err
	}
	if err := putOctal(buf[offDevmajor:offDevmajor+lenDevmajor], h.Devmajor); err != nil {
		return nil, err
	}
	if err := putOctal(buf[offDevminor:offDevminor+lenDevminor], h.Devminor); err != nil {
		return nil, err
	}

	for i := range buf[offChksum : offChksum+lenChksum] {
		buf[offChksum+i] = ' '
	}
	sum := checksumOf(buf)
	putChecksum(buf[offChksum:offChksum+lenChksum], sum)

	return buf, nil
}

// unmarshalHeader parses a 512-byte record into a Header, validating its
// checksum. Grounded on TinyUntar's translate_header: each field is
// cut at its first NUL and stripped of trailing spaces before
// interpretation (numeric fields also of leading spaces), and numeric
// fields accept either octal ASCII or a GNU base-256 escape.
func unmarshalHeader(buf []byte) (Header, error) {
	if len(buf) != BlockSize {
		return Header{}, errcode.New(errcode.TarHeaderParseFail)
	}

	wantSum := checksumWithFieldBlanked(buf)
	gotSum, ok := parseChecksumField(buf[offChksum : offChksum+lenChksum])
	if !ok || gotSum != wantSum {
		return Header{}, errcode.New(errcode.TarHeaderTransFail)
	}

	mode, err := parseNumeric(buf[offMode : offMode+lenMode])
	if err != nil {
		return Header{}, err
	}
	uid, err := parseNumeric(buf[offUID : offUID+lenUID])
	if err != nil {
		return Header{}, err
	}
	gid, err := parseNumeric(buf[offGID : offGID+lenGID])
	if err != nil {
		return Header{}, err
	}
	size, err := parseNumeric(buf[offSize : offSize+lenSize])
	if err != nil {
		return Header{}, err
	}
	mtime, err := parseNumeric(buf[offMtime : offMtime+lenMtime])
	if err != nil {
		return Header{}, err
	}
	devmajor, _ := parseNumeric(buf[offDevmajor : offDevmajor+lenDevmajor])
	devminor, _ := parseNumeric(buf[offDevminor : offDevminor+lenDevminor])

	name := trimField(buf[offName : offName+lenName])
	prefix := trimField(buf[offPrefix : offPrefix+lenPrefix])

	h := Header{
		Name:     joinPath(name, prefix),
		Mode:     mode,
		UID:      uid,
		GID:      gid,
		Size:     size,
		Mtime:    mtime,
		Typeflag: buf[offTypeflag],
		Linkname: trimField(buf[offLinkname : offLinkname+lenLinkname]),
		Uname:    trimField(buf[offUname : offUname+lenUname]),
		Gname:    trimField(buf[offGname : offGname+lenGname]),
		Devmajor: devmajor,
		Devminor: devminor,
	}
	return h, nil
}

// isZeroBlock reports whether buf is entirely NUL, the end-of-archive
// marker (two consecutive zero records signal EOF).
func isZeroBlock(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

func trimField(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, " ")
}

func putString(dst []byte, s string) error {
	if len(s) > len(dst) {
		return errcode.New(errcode.FilenameTooLong)
	}
	copy(dst, s)
	return nil
}

func putOctal(dst []byte, v int64) error {
	s := strconv.FormatInt(v, 8)
	return writeOctalField(dst, s, true)
}

// putOctalSpace encodes an mtime field: octal, 12 chars,
// space-terminated, no NUL.
func putOctalSpace(dst []byte, v int64) error {
	s := strconv.FormatInt(v, 8)
	if len(s) > len(dst)-1 {
		return errcode.New(errcode.FilenameTooLong)
	}
	for i := range dst {
		dst[i] = '0'
	}
	copy(dst[len(dst)-len(s)-1:], s)
	dst[len(dst)-1] = ' '
	return nil
}

// putSize encodes a size field, falling back to the GNU base-256 escape
// when the octal representation would not fit lenSize-1 digits.
func putSize(dst []byte, v int64) error {
	s := strconv.FormatInt(v, 8)
	if len(s) <= len(dst)-1 {
		return writeOctalField(dst, s, true)
	}
	encodeBase256(uint64(v), dst)
	return nil
}

func writeOctalField(dst []byte, digits string, nulTerminate bool) error {
	width := len(dst) - 1
	if len(digits) > width {
		return errcode.New(errcode.FilenameTooLong)
	}
	for i := range dst {
		dst[i] = '0'
	}
	copy(dst[width-len(digits):width], digits)
	if nulTerminate {
		dst[len(dst)-1] = 0
	} else {
		dst[len(dst)-1] = ' '
	}
	return nil
}

func putChecksum(dst []byte, sum uint32) {
	s := strconv.FormatUint(uint64(sum), 8)
	for i := range dst {
		dst[i] = '0'
	}
	if len(s) > len(dst)-2 {
		s = s[len(s)-(len(dst)-2):]
	}
	copy(dst[len(dst)-2-len(s):len(dst)-2], s)
	dst[len(dst)-2] = 0
	dst[len(dst)-1] = ' '
}

func parseChecksumField(b []byte) (uint32, bool) {
	s := strings.TrimLeft(trimField(b), " ")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// parseNumeric decodes an octal ASCII field, or a GNU base-256 escape
// when the field's first byte has its high bit set.
func parseNumeric(b []byte) (int64, error) {
	if len(b) > 0 && b[0]&0x80 != 0 {
		return int64(decodeBase256(b)), nil
	}
	s := strings.TrimLeft(trimField(b), " ")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 8, 64)
	if err != nil {
		return 0, errcode.New(errcode.TarHeaderParseFail)
	}
	return v, nil
}

// encodeBase256 writes v into dst as a GNU base-256 escaped field: the
// top bit of the first byte is set to mark the escape, the remaining
// bits hold v big-endian.
func encodeBase256(v uint64, dst []byte) {
	for i := len(dst) - 1; i >= 1; i-- {
		dst[i] = byte(v & 0xFF)
		v >>= 8
	}
	dst[0] = 0x80 | byte(v&0x7F)
}

func decodeBase256(b []byte) uint64 {
	v := uint64(b[0] & 0x7F)
	for _, c := range b[1:] {
		v = v<<8 | uint64(c)
	}
	return v
}

// checksumOf sums every byte of the record treating the checksum field
// as already blanked to spaces (caller's responsibility).
func checksumOf(buf []byte) uint32 {
	var sum uint32
	for _, b := range buf {
		sum += uint32(b)
	}
	return sum
}

// checksumWithFieldBlanked recomputes the checksum as if the checksum
// field held 8 spaces, without mutating buf.
func checksumWithFieldBlanked(buf []byte) uint32 {
	var sum uint32
	for i, b := range buf {
		if i >= offChksum && i < offChksum+lenChksum {
			sum += uint32(' ')
			continue
		}
		sum += uint32(b)
	}
	return sum
}
