package extract

import "fmt"

// FileNotFoundError reports that the content provider had no content for
// the requested file at the requested ref.
type FileNotFoundError struct {
	Owner string
	Repo  string
	Path  string
	Ref   string
}

func (e *FileNotFoundError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("file %s not found in %s/%s at %s", e.Path, e.Owner, e.Repo, e.Ref)
	}
	return fmt.Sprintf("file %s not found in %s/%s", e.Path, e.Owner, e.Repo)
}

// LineOutOfRangeError reports a request for a line beyond the end of the
// file. It carries the offending line and the file's total line count.
type LineOutOfRangeError struct {
	Requested  int
	TotalLines int
}

func (e *LineOutOfRangeError) Error() string {
	return fmt.Sprintf("line %d out of range: file has %d lines", e.Requested, e.TotalLines)
}

// FunctionNotFoundError reports that no declaration matched the requested
// function name.
type FunctionNotFoundError struct {
	File     string
	Function string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("function %q not found in %s", e.Function, e.File)
}
