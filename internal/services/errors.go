package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAssembly      = errors.New("assembly error")
	ErrProcess       = errors.New("process error")
	ErrBatchTool     = errors.New("batch tool error")
	ErrProtocol      = errors.New("protocol error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrProcess
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind names the taxonomy bucket an error belongs to. Unknown errors are
// reported as "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAssembly):
		return "assembly"
	case errors.Is(err, ErrProcess):
		return "process"
	case errors.Is(err, ErrBatchTool):
		return "batch_tool"
	case errors.Is(err, ErrProtocol), errors.Is(err, ErrValidation):
		return "protocol"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
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
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
