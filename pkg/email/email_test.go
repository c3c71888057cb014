package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "owner@safereport.local", Normalize("  Owner@SafeReport.local "))
	assert.Equal(t, "", Normalize("   "))
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"night.nurse@home.example", "Night Nurse"},
		{"owner@safereport.local", "Owner"},
		{"care_team-lead+rota@home.example", "Care Team Lead Rota"},
		{"...@home.example", "User"},
		{"", "User"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.in))
		})
	}
}
