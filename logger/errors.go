package logger

import (
	"fmt"
	"strings"
)

// ErrInvalidConfig is wrapped by every configuration error of this package
var ErrInvalidConfig = fmt.Errorf("logger: invalid config")

func ErrBuildLogger(err error) error {
	return fmt.Errorf("logger: build: %w", err)
}

func ErrInvalidLevel(level string, err error) error {
	return fmt.Errorf("%w: level %q: %w", ErrInvalidConfig, level, err)
}

func ErrInvalidEncoding(encoding string) error {
	return fmt.Errorf("%w: encoding %q, must be one of: %s", ErrInvalidConfig, encoding, strings.Join(validEncodings, ", "))
}
