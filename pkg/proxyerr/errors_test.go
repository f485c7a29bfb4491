package proxyerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err: &Error{
				Type:    ErrNotFound,
				Message: "test message",
				Cause:   errors.New("underlying error"),
			},
			want: "not_found: test message: underlying error",
		},
		{
			name: "error without cause",
			err: &Error{
				Type:    ErrValidation,
				Message: "test message",
				Cause:   nil,
			},
			want: "validation: test message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("Error.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &Error{
		Type:    ErrInternal,
		Message: "test message",
		Cause:   cause,
	}

	if got := err.Unwrap(); got != cause {
		t.Errorf("Error.Unwrap() = %v, want %v", got, cause)
	}

	errNoCause := &Error{
		Type:    ErrInternal,
		Message: "test message",
		Cause:   nil,
	}

	if got := errNoCause.Unwrap(); got != nil {
		t.Errorf("Error.Unwrap() = %v, want nil", got)
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
		want bool
	}{
		{"validation matches", NewValidationError("bad", nil), IsValidation, true},
		{"validation mismatch", NewNotFoundError("missing", nil), IsValidation, false},
		{"not found matches", NewNotFoundError("missing", nil), IsNotFound, true},
		{"invalid token matches", NewInvalidTokenError("nope"), IsInvalidToken, true},
		{"forbidden matches", NewForbiddenError("no"), IsForbidden, true},
		{"duplicate matches", NewDuplicateError("two rows", nil), IsDuplicate, true},
		{"configuration matches", NewConfigurationError("bad dsn", nil), IsConfiguration, true},
		{"unavailable matches", NewUnavailableError("db down", nil), IsUnavailable, true},
		{"internal matches", NewInternalError("boom", nil), IsInternal, true},
		{"plain error never matches", errors.New("plain"), IsNotFound, false},
		{"nil never matches", nil, IsInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred(tt.err); got != tt.want {
				t.Errorf("predicate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPredicates_Wrapped(t *testing.T) {
	inner := NewNotFoundError("record 'x' not found", nil)
	wrapped := fmt.Errorf("loading tenant: %w", inner)

	if !IsNotFound(wrapped) {
		t.Errorf("IsNotFound(wrapped) = false, want true")
	}
	if IsValidation(wrapped) {
		t.Errorf("IsValidation(wrapped) = true, want false")
	}
}

func TestFieldsOf(t *testing.T) {
	fields := []FieldError{
		{Field: "port", Message: "expected an integer"},
		{Field: "tenant_id", Message: "required"},
	}
	err := NewValidationError("invalid parameters", fields)

	got := FieldsOf(fmt.Errorf("invoke: %w", err))
	if len(got) != 2 {
		t.Fatalf("FieldsOf() returned %d fields, want 2", len(got))
	}
	if got[0].Field != "port" || got[1].Field != "tenant_id" {
		t.Errorf("FieldsOf() = %v, want original field order", got)
	}

	if FieldsOf(errors.New("plain")) != nil {
		t.Errorf("FieldsOf(plain) != nil")
	}
}
