package app

import "fmt"

// DomainError is a user-facing failure with an HTTP-equivalent status. Access
// denial surfaces as 403 here; it is an expected outcome, not a logged error.
type DomainError struct {
	Status  int
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func notFound(message string) *DomainError {
	return &DomainError{Status: 404, Code: "NOT_FOUND", Message: message}
}

func accessDenied(message string) *DomainError {
	return &DomainError{Status: 403, Code: "ACCESS_DENIED", Message: message}
}

func unauthenticated(message string) *DomainError {
	return &DomainError{Status: 401, Code: "UNAUTHENTICATED", Message: message}
}
