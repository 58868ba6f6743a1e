package sst25v_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gentam/sst25v"
)

func TestPartByName(t *testing.T) {
	tests := []struct {
		name string
		want sst25v.Part
		ok   bool
	}{
		{"SST25VF032B", sst25v.SST25VF032B, true},
		{"sst25vf010a", sst25v.SST25VF010A, true},
		{"SST25VF099X", sst25v.Part{}, false},
		{"", sst25v.Part{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := sst25v.PartByName(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPartsTable(t *testing.T) {
	parts := sst25v.Parts()
	assert.NotEmpty(t, parts)

	// Densities grow monotonically across the family.
	var prev uint32
	for _, p := range parts {
		assert.Greater(t, p.Capacity, prev, p.Name)
		assert.NotZero(t, p.ByteProgram, p.Name)
		assert.NotZero(t, p.BlockErase, p.Name)
		prev = p.Capacity
	}

	assert.Equal(t, uint32(128<<10), sst25v.SST25VF010A.Capacity)
	assert.Equal(t, uint32(4<<20), sst25v.SST25VF032B.Capacity)
	assert.Equal(t, "SST25VF016B", sst25v.SST25VF016B.String())
}
