package mfr

import (
	"errors"
	"fmt"
)

// ErrorKind is the result code returned across the MFR HAL boundary.
// Numeric values are part of the HAL contract and must not change.
type ErrorKind int

const (
	NoError               ErrorKind = 0
	General               ErrorKind = 0x1000
	InvalidParam          ErrorKind = General + 1
	InvalidState          ErrorKind = General + 2
	OperationNotSupported ErrorKind = General + 3
	// ResourceExhausted is the malloc-failed code of the HAL.
	ResourceExhausted ErrorKind = General + 4
	NotInitialized    ErrorKind = General + 5
	EncryptionFailed  ErrorKind = General + 6
	DecryptionFailed  ErrorKind = General + 7
	Unknown           ErrorKind = General + 8
)

var errorKindNames = map[ErrorKind]string{
	NoError:               "NoError",
	General:               "General",
	InvalidParam:          "InvalidParam",
	InvalidState:          "InvalidState",
	OperationNotSupported: "OperationNotSupported",
	ResourceExhausted:     "ResourceExhausted",
	NotInitialized:        "NotInitialized",
	EncryptionFailed:      "EncryptionFailed",
	DecryptionFailed:      "DecryptionFailed",
	Unknown:               "Unknown",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%#x)", int(k))
}

// Error makes ErrorKind usable as a Go error so it can be wrapped and
// recovered with KindOf.
func (k ErrorKind) Error() string {
	return "mfr: " + k.String()
}

// Err returns nil for NoError and the kind itself otherwise.
func (k ErrorKind) Err() error {
	if k == NoError {
		return nil
	}
	return k
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ErrorKind) UnmarshalText(text []byte) error {
	for kind, name := range errorKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", string(text))
}

// KindOf extracts the ErrorKind carried by err. A nil error maps to NoError,
// an error without a kind maps to General.
func KindOf(err error) ErrorKind {
	if err == nil {
		return NoError
	}
	var kind ErrorKind
	if errors.As(err, &kind) {
		return kind
	}
	return General
}
