package fwupgrade

import (
	"fmt"
	"strings"

	"github.com/autopeer-io/mfrhal/pkg/mfr"
)

const pathSeparator = "/"

// Request is one image handed over for flashing. The worker owns its copy
// for the duration of the upgrade.
type Request struct {
	ID       string
	Name     string
	Path     string
	Type     mfr.ImageType
	Notifier mfr.Notifier
}

func (r Request) validate() error {
	if r.Name == "" || r.Path == "" {
		return fmt.Errorf("image name and path are required: %w", mfr.InvalidParam)
	}
	return nil
}

// Location is the full image path, <path>[/]<name>.
func (r Request) Location() string {
	if strings.HasSuffix(r.Path, pathSeparator) {
		return r.Path + r.Name
	}
	return r.Path + pathSeparator + r.Name
}

// buildFlashCommand assembles "<script> <path>[/]<name>". A result longer
// than maxLen (when maxLen > 0) cannot be handed to the platform and is
// reported as ResourceExhausted.
func buildFlashCommand(script string, r Request, maxLen int) (string, error) {
	location := r.Location()

	size := len(script) + 1 + len(location)
	if maxLen > 0 && size > maxLen {
		return "", fmt.Errorf("flash command needs %d bytes, limit is %d: %w", size, maxLen, mfr.ResourceExhausted)
	}

	var b strings.Builder
	b.Grow(size)
	b.WriteString(script)
	b.WriteByte(' ')
	b.WriteString(location)
	return b.String(), nil
}

// DefaultImageType is assumed when a request does not say how the image was
// downloaded.
const DefaultImageType = mfr.ImageTypeRCDL

// ParseImageType is mfr.ParseImageType falling back to DefaultImageType for
// an empty string.
func ParseImageType(s string) (mfr.ImageType, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultImageType, nil
	}
	t, err := mfr.ParseImageType(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", mfr.InvalidParam, err)
	}
	return t, nil
}

// Submitter accepts upgrade requests and returns the handle of the started
// worker. Dispatcher implements it, and so does the HAL wrapping it.
type Submitter interface {
	Submit(name, path string, t mfr.ImageType, n mfr.Notifier) (*Task, error)
}
