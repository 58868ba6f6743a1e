package sst25v

import (
	"strings"
	"time"
)

// Part identifies one member of the SST25V serial flash family and
// carries the datasheet parameters the driver depends on: the array
// capacity used for address validation, and the AC programming times
// used to pace write and erase operations.
//
//	AC characteristics:
//	  - [SST25VF032B|Table 9: AC Operating Characteristics]
//	  - [SST25VF016B|Table 10: AC Operating Characteristics]
type Part struct {
	Name     string
	Capacity uint32 // array size in bytes

	ByteProgram time.Duration // tBP: Byte-Program cycle time
	BlockErase  time.Duration // tBE: Block-Erase cycle time
}

func (p Part) String() string { return p.Name }

// Known family members. SST25VF032B is the 4,194,304-byte part the
// driver is deployed against and is the default when Config.Part is
// left zero.
var (
	SST25VF010A = Part{"SST25VF010A", 128 << 10, 20 * time.Microsecond, 25 * time.Millisecond}
	SST25VF020B = Part{"SST25VF020B", 256 << 10, 10 * time.Microsecond, 25 * time.Millisecond}
	SST25VF040B = Part{"SST25VF040B", 512 << 10, 10 * time.Microsecond, 25 * time.Millisecond}
	SST25VF080B = Part{"SST25VF080B", 1 << 20, 10 * time.Microsecond, 25 * time.Millisecond}
	SST25VF016B = Part{"SST25VF016B", 2 << 20, 10 * time.Microsecond, 25 * time.Millisecond}
	SST25VF032B = Part{"SST25VF032B", 4 << 20, 10 * time.Microsecond, 25 * time.Millisecond}
)

var knownParts = []Part{
	SST25VF010A,
	SST25VF020B,
	SST25VF040B,
	SST25VF080B,
	SST25VF016B,
	SST25VF032B,
}

// Parts returns the family members known to the driver.
func Parts() []Part {
	parts := make([]Part, len(knownParts))
	copy(parts, knownParts)
	return parts
}

// PartByName looks up a family member by its datasheet name. Matching is
// case-insensitive.
func PartByName(name string) (Part, bool) {
	for _, p := range knownParts {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Part{}, false
}
