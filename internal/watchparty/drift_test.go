package watchparty

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcilerShouldSeek(t *testing.T) {
	r := NewReconciler(0)
	assert.Equal(t, DefaultTolerance, r.Tolerance)

	tests := []struct {
		name   string
		local  float64
		target float64
		want   bool
	}{
		{"in sync", 10.0, 10.0, false},
		{"small drift", 10.0, 11.9, false},
		{"exactly tolerance", 10.0, 12.0, false},
		{"past tolerance", 10.0, 12.1, true},
		{"behind", 10.0, 7.9, true},
		{"pause correction", 335, 340, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.ShouldSeek(tt.local, tt.target))
		})
	}
}

func TestReconcilerCustomTolerance(t *testing.T) {
	r := NewReconciler(0.5)

	assert.False(t, r.ShouldSeek(3, 3.5))
	assert.True(t, r.ShouldSeek(3, 3.6))
	assert.InDelta(t, 0.6, r.Drift(3.6, 3), 1e-9)
}
