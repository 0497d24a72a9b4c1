package log

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type stringer string

func (s stringer) String() string { return string(s) }

func TestToFields(t *testing.T) {
	now := time.Now()
	err := errors.New("boom")

	tests := []struct {
		name  string
		input []any
	}{
		{"empty input", []any{}},
		{"string-int-bool", []any{"a", "x", "b", 123, "c", true}},
		{"time type", []any{"t", now}},
		{"float type", []any{"pi", 3.14}},
		{"bytes", []any{"data", []byte("xyz")}},
		{"error only", []any{err}},
		{"multiple errors", []any{err, errors.New("again")}},
		{"mixed field types", []any{"msg", "ok", zap.String("x", "y"), "num", 42}},
		{"odd number of args", []any{"key1", "val1", "key2"}},
		{"non-string key", []any{123, "value", true, 99}},
		{"nil values", []any{"a", nil, "b", (*int)(nil)}},
		{"map value", []any{"a", map[string]string{"xyz": "123"}}},
		{"string slice", []any{"paths", []string{"stdout", "/var/log/mfr.log"}}},
		{"stringer", []any{"elapsed", stringer("10%")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := toFields(tt.input...)

			if fields == nil && len(tt.input) > 0 {
				t.Errorf("nil fields for non-empty input: %v", tt.input)
			}

			for _, f := range fields {
				if f.Key == "" {
					t.Errorf("field has empty key: %+v", f)
				}
			}
		})
	}
}

func TestToFieldsTypedValues(t *testing.T) {
	fields := toFields("image", "image.bin", "percentage", 50, "status", stringer("Started"))
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(fields))
	}
	if fields[0].Type != zapcore.StringType || fields[0].String != "image.bin" {
		t.Errorf("unexpected image field: %+v", fields[0])
	}
	if fields[1].Type != zapcore.Int64Type || fields[1].Integer != 50 {
		t.Errorf("unexpected percentage field: %+v", fields[1])
	}
	if fields[2].Type != zapcore.StringType || fields[2].String != "Started" {
		t.Errorf("stringer should be rendered as string: %+v", fields[2])
	}
}

type errorKind int

func (errorKind) Error() string  { return "mfr: DecryptionFailed" }
func (errorKind) String() string { return "DecryptionFailed" }

func TestToFieldsPrefersStringOverError(t *testing.T) {
	fields := toFields("error", errorKind(0x1007), "cause", errors.New("boom"))
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if fields[0].Type != zapcore.StringType || fields[0].String != "DecryptionFailed" {
		t.Errorf("error kind should be rendered by name: %+v", fields[0])
	}
	if fields[1].Type != zapcore.ErrorType || fields[1].Key != "cause" {
		t.Errorf("plain errors should stay errors: %+v", fields[1])
	}
}
