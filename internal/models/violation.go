package models

// Violation codes
const (
	CodeRequired         = "required"
	CodeInvalidOption    = "invalid_option"
	CodeOutOfRange       = "out_of_range"
	CodeDateOrder        = "date_order"
	CodeNonPositive      = "non_positive"
	CodeExceedsReference = "exceeds_reference"
	CodeSumMismatch      = "sum_mismatch"
	CodeExceedsAvailable = "exceeds_available"
)

// Violation is one user-correctable problem with submitted stage data.
// Values carries the numbers involved so callers can render a precise
// message in their own language.
type Violation struct {
	Field   string             `json:"field"`
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Values  map[string]float64 `json:"values,omitempty"`
}

func (v Violation) Error() string {
	return v.Field + ": " + v.Message
}
