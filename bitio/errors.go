package bitio

import "errors"

// errNeedInput signals a Source has no more buffered bits/bytes and the
// caller must Feed more before retrying the same read.
var errNeedInput = errors.New("bitio: need more input")

// NeedInput reports whether err is the "feed me more" signal Source reads
// return, as opposed to a genuine malformed-stream error.
func NeedInput(err error) bool {
	return errors.Is(err, errNeedInput)
}
