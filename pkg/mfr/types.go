package mfr

import (
	"fmt"
	"strings"
)

// ImageType describes how an upgrade image reached the device.
type ImageType int

const (
	// ImageTypeCDL is a DOCSIS-based download.
	ImageTypeCDL ImageType = iota
	// ImageTypeRCDL is an HTTP-based download.
	ImageTypeRCDL
)

func (t ImageType) String() string {
	switch t {
	case ImageTypeCDL:
		return "cdl"
	case ImageTypeRCDL:
		return "rcdl"
	default:
		return fmt.Sprintf("ImageType(%d)", int(t))
	}
}

func (t ImageType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ImageType) UnmarshalText(text []byte) error {
	parsed, err := ParseImageType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseImageType accepts "cdl"/"docsis" and "rcdl"/"http", case-insensitive.
func ParseImageType(s string) (ImageType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cdl", "docsis":
		return ImageTypeCDL, nil
	case "rcdl", "http":
		return ImageTypeRCDL, nil
	default:
		return 0, fmt.Errorf("unknown image type %q", s)
	}
}

// UpgradeProgress is the coarse state of an upgrade attempt.
type UpgradeProgress int

const (
	ProgressNotStarted UpgradeProgress = iota
	ProgressStarted
	ProgressAborted
	ProgressCompleted
)

var progressNames = [...]string{
	ProgressNotStarted: "NotStarted",
	ProgressStarted:    "Started",
	ProgressAborted:    "Aborted",
	ProgressCompleted:  "Completed",
}

func (p UpgradeProgress) String() string {
	if p >= 0 && int(p) < len(progressNames) {
		return progressNames[p]
	}
	return fmt.Sprintf("UpgradeProgress(%d)", int(p))
}

// IsTerminal reports whether no further notification can follow p.
func (p UpgradeProgress) IsTerminal() bool {
	return p == ProgressAborted || p == ProgressCompleted
}

func (p UpgradeProgress) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *UpgradeProgress) UnmarshalText(text []byte) error {
	for i, name := range progressNames {
		if name == string(text) {
			*p = UpgradeProgress(i)
			return nil
		}
	}
	return fmt.Errorf("unknown upgrade progress %q", string(text))
}

// UpgradeStatus is a single progress report. It is a value type; every
// notification carries a fresh copy.
type UpgradeStatus struct {
	Progress   UpgradeProgress `json:"progress"`
	Error      ErrorKind       `json:"error"`
	Percentage int             `json:"percentage"`
}

func (s UpgradeStatus) String() string {
	return fmt.Sprintf("%s/%s/%d%%", s.Progress, s.Error.String(), s.Percentage)
}

// NotifyFunc receives an upgrade status together with the caller context
// registered in the Notifier.
type NotifyFunc func(status UpgradeStatus, context any)

// Notifier is the caller-supplied capability for receiving asynchronous
// upgrade progress. Callback runs on the worker goroutine and must not block
// indefinitely.
type Notifier struct {
	Callback NotifyFunc
	// Context is handed back to Callback unchanged.
	Context any
	// Interval in seconds between two successive callbacks. Zero means only
	// the final result is guaranteed.
	Interval int
}

// Notify invokes the callback if one is set.
func (n Notifier) Notify(status UpgradeStatus) {
	if n.Callback == nil {
		return
	}
	n.Callback(status, n.Context)
}
