package config

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Size is a byte count written either as a plain or hex number or with a
// binary unit suffix such as 512MiB or 3GiB.
type Size uint64

var sizeUnits = []struct {
	suffix string
	shift  uint
}{
	{"TiB", 40},
	{"GiB", 30},
	{"MiB", 20},
	{"KiB", 10},
	{"T", 40},
	{"G", 30},
	{"M", 20},
	{"K", 10},
}

// ParseSize parses s as a Size.
func ParseSize(s string) (Size, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("config: empty size")
	}
	num, shift := s, uint(0)
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			num, shift = strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), u.shift
			break
		}
	}
	v, err := strconv.ParseUint(strings.ReplaceAll(num, "_", ""), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid size %q", s)
	}
	if shift > 0 && bits.LeadingZeros64(v) < int(shift) {
		return 0, fmt.Errorf("config: size %q overflows 64 bits", s)
	}
	return Size(v << shift), nil
}

// String formats the size with the largest unit that divides it exactly.
func (s Size) String() string {
	if s == 0 {
		return "0"
	}
	for _, u := range sizeUnits[:4] {
		if uint64(s)%(1<<u.shift) == 0 {
			return strconv.FormatUint(uint64(s)>>u.shift, 10) + u.suffix
		}
	}
	return fmt.Sprintf("%#x", uint64(s))
}

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("config: line %d: size must be a scalar", value.Line)
	}
	v, err := ParseSize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = v
	return nil
}

func (s Size) MarshalYAML() (any, error) {
	return s.String(), nil
}
