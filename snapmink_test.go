package snapmink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion(t *testing.T) {
	assert.Equal(t, "0.1.0", Version())
}

func TestBuildStreamID(t *testing.T) {
	tests := []struct {
		name          string
		aggregateType string
		aggregateID   string
		want          string
	}{
		{"standard stream ID", "Account", "123", "Account-123"},
		{"UUID ID", "Account", "550e8400-e29b-41d4-a716-446655440000", "Account-550e8400-e29b-41d4-a716-446655440000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildStreamID(tt.aggregateType, tt.aggregateID)
			assert.Equal(t, tt.want, got)

			parsed, err := ParseStreamID(got)
			assert.NoError(t, err)
			assert.Equal(t, tt.aggregateID, parsed.ID)
		})
	}
}
