package helper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPhoneNumber(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain international", "4915112345678", "4915112345678@s.whatsapp.net", false},
		{"with plus and spaces", "+49 151 1234 5678", "4915112345678@s.whatsapp.net", false},
		{"with dashes and parens", "+1 (555) 123-4567", "15551234567@s.whatsapp.net", false},
		{"letters rejected", "49151abc", "", true},
		{"too short", "12345", "", true},
		{"too long", "1234567890123456", "", true},
		{"leading zero rejected", "0151123456789", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jid, err := FormatPhoneNumber(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, jid.String())
		})
	}
}

func TestNormalizeTarget(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare phone", "+49 151 1234 5678", "4915112345678@s.whatsapp.net", false},
		{"user jid passthrough", "4915112345678@s.whatsapp.net", "4915112345678@s.whatsapp.net", false},
		{"group jid passthrough", "120363024512399999@g.us", "120363024512399999@g.us", false},
		{"bad phone", "not-a-number", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTarget(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
