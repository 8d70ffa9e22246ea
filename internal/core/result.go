package core

// FailureCode classifies a domain-level failure. These are returned as
// values, not errors: the presentation layer renders Message directly.
type FailureCode string

const (
	FailNone               FailureCode = ""
	FailNotFound           FailureCode = "not_found"
	FailAlreadyMember      FailureCode = "already_member"
	FailInvalidDestination FailureCode = "invalid_destination"
	FailSameEndpoint       FailureCode = "same_endpoint"
	FailInvalidAmount      FailureCode = "invalid_amount"
	FailOutsideMonth       FailureCode = "outside_month"
	FailInvalidDate        FailureCode = "invalid_date"
	FailInvalidRole        FailureCode = "invalid_role"
	FailInvalidName        FailureCode = "invalid_name"
	FailNotAuthorized      FailureCode = "not_authorized"
)

// Result is the outcome of a service operation. Message is user-facing
// text for both the success and failure case.
type Result struct {
	Success bool        `json:"success"`
	Code    FailureCode `json:"code,omitempty"`
	Message string      `json:"message"`
}

func OK(message string) Result {
	return Result{Success: true, Message: message}
}

func Fail(code FailureCode, message string) Result {
	return Result{Success: false, Code: code, Message: message}
}
