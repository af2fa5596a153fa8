package lz77

const (
	// MinMatch is the shortest back-reference DEFLATE can encode.
	MinMatch = 3
	// MaxMatch is the longest back-reference DEFLATE can encode.
	MaxMatch = 258
	// MaxWindow is the largest distance a back-reference may span.
	MaxWindow = 32768

	// DefaultHashBits is the bucket-count exponent genlz77.c uses.
	DefaultHashBits = 12
)

// Token is one LZ77 output symbol: either a literal byte or a (distance,
// length) copy, the two entry points the DEFLATE encoder is
// driven through.
type Token struct {
	Literal  bool
	Byte     byte
	Distance uint32
	Length   uint32
}

// ProgressFunc mirrors uzlib_compress's optional progress callback,
// invoked with (bytes_processed, total) after each emitted token and once
// more with (total, total) when Process finishes.
type ProgressFunc func(done, total int)

// Matcher is a hashed 3-byte sliding-window match finder. It retains the
// full history fed to it across calls to Process so matches can reference
// bytes from a previous chunk, up to MaxWindow back — the cross-chunk
// behavior "pack tar.gz in one pass" depends on. History is never
// trimmed, so it grows with everything processed since New or Reset.
type Matcher struct {
	hashBits uint
	hashSize int32
	table    []int32 // bucket -> absolute position of most recent occurrence, -1 = empty
	history  []byte  // every byte processed so far
}

// New returns a Matcher using 1<<hashBits buckets ("HASH_BITS
// configurable, typical 12").
func New(hashBits uint) *Matcher {
	if hashBits == 0 {
		hashBits = DefaultHashBits
	}
	size := int32(1) << hashBits
	tbl := make([]int32, size)
	for i := range tbl {
		tbl[i] = -1
	}
	return &Matcher{hashBits: hashBits, hashSize: size, table: tbl}
}

func (m *Matcher) hash(p []byte) int32 {
	v := int32(p[0])<<16 | int32(p[1])<<8 | int32(p[2])
	h := (v >> (24 - m.hashBits)) - v
	return h & (m.hashSize - 1)
}

// Process appends data to the matcher's history and emits the LZ77 token
// stream for it. Tokens may reference bytes from
// prior Process calls. A tail shorter than MinMatch bytes is always
// emitted as literals.
func (m *Matcher) Process(data []byte, progress ProgressFunc) []Token {
	base := len(m.history)
	m.history = append(m.history, data...)
	hist := m.history
	total := len(data)

	var tokens []Token

	pos := base
	end := len(hist)
	matchEnd := end - MinMatch // last position where a 3-byte prefix exists

	for pos < end {
		if progress != nil {
			progress(pos-base, total)
		}

		if pos > matchEnd {
			tokens = append(tokens, Token{Literal: true, Byte: hist[pos]})
			pos++
			continue
		}

		h := m.hash(hist[pos : pos+3])
		prev := m.table[h]
		m.table[h] = int32(pos)

		if prev >= 0 && pos-int(prev) <= MaxWindow && pos-int(prev) > 0 &&
			hist[prev] == hist[pos] && hist[prev+1] == hist[pos+1] && hist[prev+2] == hist[pos+2] {

			length := MinMatch
			maxLen := end - pos
			if maxLen > MaxMatch {
				maxLen = MaxMatch
			}
			for length < maxLen && hist[int(prev)+length] == hist[pos+length] {
				length++
			}

			tokens = append(tokens, Token{
				Distance: uint32(pos - int(prev)),
				Length:   uint32(length),
			})
			pos += length
			continue
		}

		tokens = append(tokens, Token{Literal: true, Byte: hist[pos]})
		pos++
	}

	if progress != nil {
		progress(total, total)
	}

	return tokens
}

// Reset clears history and the hash table, for reuse on an unrelated
// stream (distances must never span two independent streams).
func (m *Matcher) Reset() {
	m.history = m.history[:0]
	for i := range m.table {
		m.table[i] = -1
	}
}
