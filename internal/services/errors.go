// Package services defines the error taxonomy shared across the render
// pipeline and the helpers for tagging errors with pipeline context.
package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for error classification. Asset, not-found, and frame
// errors are segment-scoped: they fail one segment without aborting its
// batch-mates. The remaining markers are job-fatal.
var (
	ErrNotFound       = errors.New("asset not found")
	ErrInvalidAsset   = errors.New("invalid asset")
	ErrFrameRender    = errors.New("frame render error")
	ErrEncode         = errors.New("encode error")
	ErrNoSegments     = errors.New("no eligible segments")
	ErrPartialFailure = errors.New("segments incomplete")
	ErrCancelled      = errors.New("render cancelled")
)

// Wrap builds an error message that includes pipeline context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrEncode
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// SegmentScoped reports whether the error should fail only its segment rather
// than the whole job.
func SegmentScoped(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidAsset) ||
		errors.Is(err, ErrFrameRender) ||
		(errors.Is(err, ErrEncode) && !errors.Is(err, ErrPartialFailure))
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
