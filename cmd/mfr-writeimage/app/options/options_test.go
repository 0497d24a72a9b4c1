package options

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteImageOptionsArgs(t *testing.T) {
	o := NewWriteImageOptions()

	assert.Error(t, o.Args(&cobra.Command{}, []string{"img.bin"}))
	require.NoError(t, o.Args(&cobra.Command{}, []string{"img.bin", "/tmp/fw"}))
	assert.Equal(t, "img.bin", o.Name)
	assert.Equal(t, "/tmp/fw", o.Path)
}

func TestWriteImageOptionsValidate(t *testing.T) {
	o := NewWriteImageOptions()
	o.Name, o.Path = "img.bin", "/tmp/fw"
	assert.NoError(t, o.Validate())

	o.Type = "tftp"
	assert.Error(t, o.Validate())

	o = NewWriteImageOptions()
	assert.ErrorContains(t, o.Validate(), "image name and path are required")
}

func TestWriteImageOptionsFlags(t *testing.T) {
	o := NewWriteImageOptions()
	fss := o.Flags()

	require.NoError(t, fss.FlagSet("image").Parse([]string{"--type", "cdl"}))
	assert.Equal(t, "cdl", o.Type)
	assert.NotNil(t, fss.FlagSet("upgrade").Lookup("upgrade.flash-script"))
}
