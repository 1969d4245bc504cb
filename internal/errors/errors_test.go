package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")

	bare := &AppError{Code: ErrCodeNotFound, Message: "no etl log for incoming/a.csv"}
	if got := bare.Error(); got != "no etl log for incoming/a.csv" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := Wrap(cause, ErrCodeUnavailable, "put object")
	if got := wrapped.Error(); got != "put object: connection reset" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is should see the cause")
	}
	if Wrap(nil, ErrCodeInternal, "x") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *AppError
		code  ErrorCode
		field string
	}{
		{"not found", NotFound("missing"), ErrCodeNotFound, ""},
		{"validation", Validation("bad"), ErrCodeValidation, ""},
		{"validation field", ValidationField("loadId", "loadId is required"), ErrCodeValidation, "loadId"},
		{"throttled", Throttled("slow down"), ErrCodeThrottled, ""},
		{"unavailable", Unavailable("try later"), ErrCodeUnavailable, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Field != tt.field {
				t.Errorf("Field = %q, want %q", tt.err.Field, tt.field)
			}
			if tt.err.Cause != nil {
				t.Errorf("Cause = %v, want nil", tt.err.Cause)
			}
		})
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	base := Wrap(errors.New("boom"), ErrCodeThrottled, "transform")
	err := fmt.Errorf("process incoming/a.csv: %w", base)

	if !IsThrottled(err) {
		t.Error("IsThrottled should match a wrapped AppError")
	}
	if IsUnavailable(err) || IsNotFound(err) || IsValidation(err) || IsConflict(err) || IsCanceled(err) {
		t.Error("only the carried code should match")
	}
	if GetCode(err) != ErrCodeThrottled {
		t.Errorf("GetCode = %q", GetCode(err))
	}
	if GetCode(errors.New("plain")) != "" {
		t.Error("GetCode of a plain error should be empty")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{Throttled("x"), true},
		{Unavailable("x"), true},
		{&AppError{Code: ErrCodeTimeout}, true},
		{NotFound("x"), false},
		{Validation("x"), false},
		{&AppError{Code: ErrCodeCanceled}, false},
		{errors.New("plain"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestGetField(t *testing.T) {
	err := fmt.Errorf("handler: %w", ValidationField("limit", "limit must be an integer"))
	if got := GetField(err); got != "limit" {
		t.Errorf("GetField = %q, want limit", got)
	}
	if got := GetField(NotFound("x")); got != "" {
		t.Errorf("GetField = %q, want empty", got)
	}
	if got := GetField(errors.New("plain")); got != "" {
		t.Errorf("GetField = %q, want empty", got)
	}
}
