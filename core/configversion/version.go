package configversion

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidFormat is returned when a version string cannot be parsed.
var ErrInvalidFormat = errors.New("invalid config version format")

// ConfigVersion identifies one write of a controller-owned value.
type ConfigVersion struct {
	// Nr increases by one on every write.
	Nr uint64
	// Timestamp is the time the value was written.
	Timestamp time.Time
}

// Initial returns the first version, stamped with the current time.
func Initial() ConfigVersion {
	return ConfigVersion{Nr: 1, Timestamp: now()}
}

// Increment returns the successor version, stamped with the current time.
func (v ConfigVersion) Increment() ConfigVersion {
	return ConfigVersion{Nr: v.Nr + 1, Timestamp: now()}
}

// Since returns the time elapsed between the version timestamp and t.
func (v ConfigVersion) Since(t time.Time) time.Duration {
	return t.Sub(v.Timestamp)
}

// IsZero reports whether the version was never set.
func (v ConfigVersion) IsZero() bool {
	return v.Nr == 0
}

// String renders the version as V<nr>-T<unix micros>.
func (v ConfigVersion) String() string {
	return fmt.Sprintf("V%d-T%d", v.Nr, v.Timestamp.UnixMicro())
}

// Parse parses a version previously produced by String.
func Parse(s string) (ConfigVersion, error) {
	nrPart, tsPart, ok := strings.Cut(s, "-")
	if !ok || !strings.HasPrefix(nrPart, "V") || !strings.HasPrefix(tsPart, "T") {
		return ConfigVersion{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	nr, err := strconv.ParseUint(nrPart[1:], 10, 64)
	if err != nil {
		return ConfigVersion{}, fmt.Errorf("%w: %q: %v", ErrInvalidFormat, s, err)
	}
	micros, err := strconv.ParseInt(tsPart[1:], 10, 64)
	if err != nil {
		return ConfigVersion{}, fmt.Errorf("%w: %q: %v", ErrInvalidFormat, s, err)
	}

	return ConfigVersion{Nr: nr, Timestamp: time.UnixMicro(micros).UTC()}, nil
}

// Value implements driver.Valuer.
func (v ConfigVersion) Value() (driver.Value, error) {
	return v.String(), nil
}

// Scan implements sql.Scanner.
func (v *ConfigVersion) Scan(src any) error {
	var raw string
	switch s := src.(type) {
	case string:
		raw = s
	case []byte:
		raw = string(s)
	case nil:
		*v = ConfigVersion{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into ConfigVersion", src)
	}

	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// GormDataType tells gorm to store the version as a string column.
func (ConfigVersion) GormDataType() string {
	return "string"
}

// MarshalText implements encoding.TextMarshaler.
func (v ConfigVersion) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *ConfigVersion) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// now is truncated to microseconds so a round trip through String is lossless.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
