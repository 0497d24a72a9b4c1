package fwupgrade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/mfrhal/pkg/mfr"
)

func TestBuildFlashCommand(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		maxLen  int
		want    string
		wantErr mfr.ErrorKind
	}{
		{
			name: "path without separator",
			req:  Request{Name: "img.bin", Path: "/tmp/fw"},
			want: "flash /tmp/fw/img.bin",
		},
		{
			name: "path with separator",
			req:  Request{Name: "img.bin", Path: "/tmp/fw/"},
			want: "flash /tmp/fw/img.bin",
		},
		{
			name:   "exactly at the limit",
			req:    Request{Name: "b", Path: "/a"},
			maxLen: len("flash /a/b"),
			want:   "flash /a/b",
		},
		{
			name:    "over the limit",
			req:     Request{Name: "b", Path: "/a"},
			maxLen:  len("flash /a/b") - 1,
			wantErr: mfr.ResourceExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildFlashCommand(testFlashScript, tt.req, tt.maxLen)
			if tt.wantErr != mfr.NoError {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, Request{Name: "a", Path: "/b"}.validate())

	for _, req := range []Request{
		{Path: "/b"},
		{Name: "a"},
		{},
	} {
		err := req.validate()
		assert.ErrorIs(t, err, mfr.InvalidParam)
		assert.Equal(t, mfr.InvalidParam, mfr.KindOf(err))
	}
}

func TestParseImageType(t *testing.T) {
	got, err := ParseImageType("")
	require.NoError(t, err)
	assert.Equal(t, DefaultImageType, got)

	got, err = ParseImageType("CDL")
	require.NoError(t, err)
	assert.Equal(t, mfr.ImageTypeCDL, got)

	_, err = ParseImageType("tftp")
	assert.ErrorIs(t, err, mfr.InvalidParam)
}
