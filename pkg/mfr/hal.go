// Package mfr defines the manufacturer library HAL: the result codes,
// upgrade status model and the operations a platform exposes for reading
// manufacturing data and flashing firmware images.
package mfr

// HAL is the manufacturer abstraction consumed by the platform.
//
// WriteImage only reports whether the flashing process was started; its
// outcome is delivered through the Notifier. Before Init and after Term
// every call except Init returns NotInitialized.
type HAL interface {
	Init() ErrorKind
	Term() ErrorKind

	// GetSerializedData reads read-only manufacturing data.
	GetSerializedData(t SerializedType) (SerializedData, ErrorKind)

	// WriteImage starts flashing <path>/<name> asynchronously.
	WriteImage(name, path string, t ImageType, notify Notifier) ErrorKind

	// VerifyImage validates headers and the signature of an image.
	VerifyImage(name, path string) ErrorKind

	// UnpackImage validates and unpacks an image into outPath/outName.
	UnpackImage(name, path, outName, outPath string) ErrorKind

	// DeletePDRI removes the P-DRI image if present.
	DeletePDRI() ErrorKind

	// ScrubAllBanks deletes the platform images.
	ScrubAllBanks() ErrorKind

	// GetUpgradeStatus returns the progress of the latest upgrade.
	GetUpgradeStatus() (UpgradeProgress, ErrorKind)

	FWUpgradeInit() ErrorKind
	FWUpgradeTerm() ErrorKind
}
