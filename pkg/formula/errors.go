package formula

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// SyntaxError reports a malformed formula, or a name the formula uses that
// neither the constant table, the scope nor the function table defines.
// Line and Column are 1-based; Column counts characters.
type SyntaxError struct {
	Message string
	Line    int
	Column  int
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// Pos returns the position the error points at. Offset is not tracked.
func (e *SyntaxError) Pos() Position {
	return Position{Line: e.Line, Column: e.Column}
}

// RuntimeError reports a numeric failure during evaluation: division by
// zero, a math domain or range error, a function called with the wrong
// number of arguments, or a non-numeric value in the scope.
type RuntimeError struct {
	Message string
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return "evaluation failed: " + e.Message
}

func newSyntaxError(pos Position, format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{Message: fmt.Sprintf(format, args...), Line: pos.Line, Column: pos.Column}
}

func newRuntimeError(format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Message: fmt.Sprintf(format, args...)}
}

// Common runtime errors.

func newDomainError() *RuntimeError {
	return &RuntimeError{Message: "math domain error"}
}

func newRangeError() *RuntimeError {
	return &RuntimeError{Message: "math range error"}
}

func newZeroDivisionError() *RuntimeError {
	return &RuntimeError{Message: "float division by zero"}
}

// IsSyntaxError reports whether err is, or wraps, a *SyntaxError.
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}

// IsRuntimeError reports whether err is, or wraps, a *RuntimeError.
func IsRuntimeError(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}

// positionAt converts a byte offset in src to a Position, counting lines
// and runes up to it.
func positionAt(src string, offset int) Position {
	if offset > len(src) {
		offset = len(src)
	}
	before := src[:offset]
	line := strings.Count(before, "\n") + 1
	if i := strings.LastIndexByte(before, '\n'); i >= 0 {
		before = before[i+1:]
	}
	return Position{Offset: offset, Line: line, Column: utf8.RuneCountInString(before) + 1}
}
