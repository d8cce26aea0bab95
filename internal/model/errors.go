package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEncoding marks a genome whose length does not match the
	// problem. It means an operator bug, never an expected search outcome.
	ErrInvalidEncoding = errors.New("invalid encoding")

	// ErrFormat marks a malformed problem or solution file.
	ErrFormat = errors.New("malformed input")
)

// EncodingError reports a genome length mismatch.
type EncodingError struct {
	Want int
	Got  int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("invalid encoding: genome has %d genes, problem needs %d", e.Got, e.Want)
}

func (e *EncodingError) Is(target error) bool { return target == ErrInvalidEncoding }

// FormatError points at the offending line of an input file.
type FormatError struct {
	Line int
	Msg  string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed input at line %d: %s", e.Line, e.Msg)
	}
	return "malformed input: " + e.Msg
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }
