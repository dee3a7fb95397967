package hdkey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PathStep is one derivation step: an index plus its hardened flag.
type PathStep struct {
	Index    uint32
	Hardened bool
}

// Path is an ordered list of derivation steps below the master key.
type Path []PathStep

// ErrInvalidPath is returned for any malformed path string.
// An invalid path is a hard parse error, never a silent default.
var ErrInvalidPath = errors.New("invalid derivation path")

// hardenedLimit is 2^31; hardened indices occupy the upper half.
const hardenedLimit = uint32(1) << 31

// ParsePath parses the textual form m/44'/60'/0'/0/0.
// Both ' and h mark hardened components.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	parts := strings.Split(s, "/")
	if parts[0] != "m" && parts[0] != "M" {
		return nil, fmt.Errorf("%w: must start with m/", ErrInvalidPath)
	}
	if len(parts) == 1 {
		return Path{}, nil
	}

	path := make(Path, 0, len(parts)-1)
	for _, part := range parts[1:] {
		if part == "" {
			return nil, fmt.Errorf("%w: empty component", ErrInvalidPath)
		}
		hardened := false
		if strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h") || strings.HasSuffix(part, "H") {
			hardened = true
			part = part[:len(part)-1]
		}
		idx, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: component %q", ErrInvalidPath, part)
		}
		if uint32(idx) >= hardenedLimit {
			return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidPath, idx)
		}
		path = append(path, PathStep{Index: uint32(idx), Hardened: hardened})
	}
	return path, nil
}

// String renders the path in canonical m/44'/0'/0'/0/0 form.
func (p Path) String() string {
	var sb strings.Builder
	sb.WriteString("m")
	for _, step := range p {
		sb.WriteString("/")
		sb.WriteString(strconv.FormatUint(uint64(step.Index), 10))
		if step.Hardened {
			sb.WriteString("'")
		}
	}
	return sb.String()
}
