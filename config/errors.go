package config

import "fmt"

var (
	ErrReadFileFailed = fmt.Errorf("config: failed to read file")
	ErrDecodeFailed   = fmt.Errorf("config: failed to decode")
	ErrInvalidSection = fmt.Errorf("config: invalid section")
)

func ErrReadFile(path string, err error) error {
	return fmt.Errorf("%w %s: %w", ErrReadFileFailed, path, err)
}

func ErrDecode(err error) error {
	return fmt.Errorf("%w: %w", ErrDecodeFailed, err)
}

func ErrInvalid(section string, err error) error {
	return fmt.Errorf("%w %s: %w", ErrInvalidSection, section, err)
}
