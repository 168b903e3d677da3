package manifest

import (
	"fmt"
	"strings"
)

// Format selects how instance items are written.
type Format int

const (
	// FormatV1 writes each instance as {sop_instance_uid, file_name}.
	FormatV1 Format = iota + 1
	// FormatV2 writes each instance as its bare path.
	FormatV2
)

// String returns the canonical name of the format.
func (f Format) String() string {
	switch f {
	case FormatV1:
		return "v1"
	case FormatV2:
		return "v2"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool { return f == FormatV1 || f == FormatV2 }

// ParseFormat maps user input to a Format. The viewer release labels v3.1 and
// v3.2 are accepted for v1 and v2.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v1", "1", "v3.1":
		return FormatV1, nil
	case "v2", "2", "v3.2":
		return FormatV2, nil
	default:
		return 0, fmt.Errorf("unknown manifest format %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("unknown manifest format %d", int(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so formats can be read
// from YAML profiles.
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
