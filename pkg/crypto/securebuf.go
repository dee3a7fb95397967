package crypto

import "fmt"

// SecureBytes owns a fixed-size byte region holding sensitive material.
// The region is zero-filled on Wipe and must not be copied except through
// Export, which exists for explicit, audited export paths (wallet backup).
type SecureBytes struct {
	buf   []byte
	wiped bool
}

// NewSecureBytes copies src into a new secure buffer and zeroes src.
func NewSecureBytes(src []byte) *SecureBytes {
	b := make([]byte, len(src))
	copy(b, src)
	for i := range src {
		src[i] = 0
	}
	return &SecureBytes{buf: b}
}

// Bytes returns the underlying buffer for in-place use.
// The slice aliases the secure region; callers must not retain it
// past the buffer's lifetime.
func (s *SecureBytes) Bytes() ([]byte, error) {
	if s.wiped {
		return nil, fmt.Errorf("secure buffer already wiped")
	}
	return s.buf, nil
}

// Len returns the buffer length, or 0 after Wipe.
func (s *SecureBytes) Len() int {
	if s.wiped {
		return 0
	}
	return len(s.buf)
}

// Export returns an owned copy of the contents. Export is the only sanctioned
// way material leaves the buffer; callers take responsibility for wiping the
// returned slice.
func (s *SecureBytes) Export() ([]byte, error) {
	if s.wiped {
		return nil, fmt.Errorf("secure buffer already wiped")
	}
	out := make([]byte, len(s.buf))
	copy(out, s.buf)
	return out, nil
}

// Wipe zero-fills the region and marks the buffer unusable. Idempotent.
func (s *SecureBytes) Wipe() {
	for i := range s.buf {
		s.buf[i] = 0
	}
	s.buf = nil
	s.wiped = true
}

// Wipe zero-fills a plain byte slice. Helper for transient copies.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
