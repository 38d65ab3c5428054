package errors

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Category represents the type of error.
type Category string

const (
	CategoryNetwork  Category = "network"
	CategoryProtocol Category = "protocol"
	CategorySession  Category = "session"
	CategorySave     Category = "save"
	CategoryConfig   Category = "config"
	CategoryCLI      Category = "cli"
)

// Location represents a position in a configuration or data file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// GridwireError is a structured error with file location, suggestions, and documentation.
type GridwireError struct {
	// Code is a unique error identifier (e.g., "E080").
	Code string

	// Category is the error type (network, config, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location is the file position where the error occurred.
	Location *Location

	// Context contains surrounding file lines.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Example is a snippet showing the correct form.
	Example string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *GridwireError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *GridwireError) Unwrap() error {
	return e.Wrapped
}

// WithLocation adds a file location to the error.
func (e *GridwireError) WithLocation(file string, line, column int) *GridwireError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, 5)
	return e
}

// WithLocationFromJSON derives a location from a byte offset into data, as
// reported by json.SyntaxError and json.UnmarshalTypeError, and attaches the
// surrounding lines.
func (e *GridwireError) WithLocationFromJSON(file string, data []byte, offset int64) *GridwireError {
	if offset < 1 || offset > int64(len(data)) {
		return e
	}
	line, column := 1, 1
	for _, c := range data[:offset-1] {
		if c == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	e.Location = &Location{File: file, Line: line, Column: column}

	lines := strings.Split(string(data), "\n")
	start := line - 2
	if start < 1 {
		start = 1
	}
	end := line + 2
	if end > len(lines) {
		end = len(lines)
	}
	e.Context = lines[start-1 : end]
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *GridwireError) WithSuggestion(s string) *GridwireError {
	e.Suggestion = s
	return e
}

// WithExample adds an example snippet to the error.
func (e *GridwireError) WithExample(ex string) *GridwireError {
	e.Example = ex
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *GridwireError) WithDetail(d string) *GridwireError {
	e.Detail = d
	return e
}

// WithContext adds custom context lines to the error.
func (e *GridwireError) WithContext(lines []string) *GridwireError {
	e.Context = lines
	return e
}

// Wrap wraps another error.
func (e *GridwireError) Wrap(err error) *GridwireError {
	e.Wrapped = err
	return e
}

// readContextLines reads lines around the specified line number from a file.
func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}

	return lines
}

// New creates a GridwireError from a registered error code.
func New(code string) *GridwireError {
	template, ok := registry[code]
	if !ok {
		return &GridwireError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &GridwireError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates a new GridwireError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *GridwireError {
	return &GridwireError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a GridwireError.
func FromError(err error, code string) *GridwireError {
	if err == nil {
		return nil
	}
	if ge, ok := err.(*GridwireError); ok {
		return ge
	}
	return New(code).Wrap(err)
}
