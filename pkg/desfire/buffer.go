package desfire

// Buffer is a fixed-capacity byte region reused across operations.
//
// length counts the valid bytes. offset is a cursor whose meaning belongs to
// the owner: on the Command Buffer it counts bytes already handed to the link
// during the current operation, on the Processing Buffer it marks the first
// byte not yet deciphered.
type Buffer struct {
	data   []byte
	length int
	offset int
}

func newBuffer(capacity int) Buffer {
	return Buffer{data: make([]byte, capacity)}
}

// Len returns the number of valid bytes.
func (b *Buffer) Len() int { return b.length }

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Bytes returns the valid bytes. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte { return b.data[:b.length] }

func (b *Buffer) append(p ...byte) error {
	if b.length+len(p) > len(b.data) {
		return overflow("buffer", b.length+len(p), len(b.data))
	}
	b.length += copy(b.data[b.length:], p)
	return nil
}

func (b *Buffer) reset() {
	b.length = 0
	b.offset = 0
}
