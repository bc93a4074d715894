package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannel(t *testing.T) {
	tests := []struct {
		raw     string
		want    ChannelName
		wantErr bool
	}{
		{raw: "security", want: ChannelSecurity},
		{raw: "mess-crowd", want: ChannelMessCrowd},
		{raw: "academic-schedule", want: ChannelAcademicSchedule},
		{raw: " user:42 ", want: "user:42"},
		{raw: "user:", wantErr: true},
		{raw: "library", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseChannel(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownChannel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUserChannel(t *testing.T) {
	name := UserChannel("abc")
	assert.Equal(t, ChannelName("user:abc"), name)

	id, ok := name.UserID()
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = ChannelSecurity.UserID()
	assert.False(t, ok)
}
