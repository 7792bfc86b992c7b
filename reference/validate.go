package reference

import "fmt"

// InvalidReferenceError reports a field combination that is inconsistent
// with the reference type.
type InvalidReferenceError struct {
	Type   Type
	Reason string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid %s reference: %s", e.Type, e.Reason)
}

// Validate checks that the positional fields are internally consistent for
// the reference type. It is a pure function of the four inputs:
//
//	line:     startLine > 0
//	range:    startLine > 0, endLine > 0, endLine >= startLine
//	function: non-empty functionName
//
// Unknown types are invalid.
func Validate(refType Type, startLine, endLine int, functionName string) error {
	switch refType {
	case TypeLine:
		if startLine <= 0 {
			return &InvalidReferenceError{Type: refType, Reason: fmt.Sprintf("start line must be positive, got %d", startLine)}
		}
		return nil
	case TypeRange:
		if startLine <= 0 {
			return &InvalidReferenceError{Type: refType, Reason: fmt.Sprintf("start line must be positive, got %d", startLine)}
		}
		if endLine <= 0 {
			return &InvalidReferenceError{Type: refType, Reason: fmt.Sprintf("end line must be positive, got %d", endLine)}
		}
		if endLine < startLine {
			return &InvalidReferenceError{Type: refType, Reason: fmt.Sprintf("end line %d precedes start line %d", endLine, startLine)}
		}
		return nil
	case TypeFunction:
		if functionName == "" {
			return &InvalidReferenceError{Type: refType, Reason: "function name is required"}
		}
		return nil
	default:
		return &InvalidReferenceError{Type: refType, Reason: "unknown reference type"}
	}
}

// ValidateReference applies Validate to a reference record.
func ValidateReference(ref CodeReference) error {
	return Validate(ref.Type, ref.StartLine, ref.EndLine, ref.FunctionName)
}
