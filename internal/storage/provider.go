// Package storage fetches upgrade images from the firmware repository.
package storage

import (
	"context"
)

// Provider defines the image repository as seen by the device.
type Provider interface {
	// Fetch downloads objectKey and returns the directory and file name of
	// the local copy.
	Fetch(ctx context.Context, objectKey string) (dir, name string, err error)
}
