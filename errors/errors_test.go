package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSyncError_Error(t *testing.T) {
	tests := []struct {
		name      string
		op        Operation
		component string
		code      ErrorCode
		err       error
		want      string
	}{
		{
			name:      "with component and code",
			op:        OpRequest,
			component: "bus",
			code:      ErrCodeTimeout,
			err:       fmt.Errorf("no reply"),
			want:      "request operation failed in bus component [TIMEOUT]: no reply",
		},
		{
			name:      "with component no code",
			op:        OpPublish,
			component: "bus",
			err:       fmt.Errorf("handler failed"),
			want:      "publish operation failed in bus component: handler failed",
		},
		{
			name: "without component with code",
			op:   OpAddTextField,
			code: ErrCodeNotFound,
			err:  fmt.Errorf("Sign type I.1 not found"),
			want: "add_text_field operation failed [NOT_FOUND]: Sign type I.1 not found",
		},
		{
			name: "without component or code",
			op:   OpCreateSignType,
			err:  fmt.Errorf("boom"),
			want: "create_sign_type operation failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &SyncError{
				Op:        tt.op,
				Component: tt.component,
				Err:       tt.err,
				Code:      tt.code,
			}

			if got := e.Error(); got != tt.want {
				t.Errorf("SyncError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("cause")
	tests := []struct {
		name      string
		err       *SyncError
		code      ErrorCode
		kind      Kind
		retryable bool
	}{
		{"validation", NewValidationError(OpCreateSignType, cause), ErrCodeValidationFailure, KindInvalid, false},
		{"not found", NewNotFoundError(OpUpdateSignType, cause), ErrCodeNotFound, KindNotFound, false},
		{"duplicate", NewDuplicateError(OpCreateSignType, cause), ErrCodeDuplicate, KindConflict, false},
		{"capability", NewCapabilityError(OpRegister, cause), ErrCodeCapabilityMissing, KindInvalid, false},
		{"request", NewRequestError(OpRequest, cause), ErrCodeRequestFailure, KindInternal, true},
		{"timeout", NewTimeoutError(OpRequest, cause), ErrCodeTimeout, KindTimeout, true},
		{"storage", NewStorageError(OpJournal, cause), ErrCodeStorageFailure, KindInternal, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", tt.err.Retryable, tt.retryable)
			}
			if tt.err.Err != cause {
				t.Errorf("Err = %v, want %v", tt.err.Err, cause)
			}
		})
	}
}

func TestSentinelMatching(t *testing.T) {
	wrapped := fmt.Errorf("adapter: %w", NewNotFoundError(OpAddTextField, fmt.Errorf("Sign type I.1 not found")))

	if !IsNotFound(wrapped) {
		t.Error("IsNotFound() = false for wrapped not-found error")
	}
	if IsDuplicate(wrapped) || IsValidation(wrapped) {
		t.Error("not-found error matched another sentinel")
	}
	if got := CodeOf(wrapped); got != ErrCodeNotFound {
		t.Errorf("CodeOf() = %v, want %v", got, ErrCodeNotFound)
	}
	if !IsDuplicate(NewDuplicateError(OpAddTextField, fmt.Errorf("dup"))) {
		t.Error("IsDuplicate() = false for duplicate error")
	}
	if !IsValidation(NewValidationError(OpAddTextField, fmt.Errorf("bad"))) {
		t.Error("IsValidation() = false for validation error")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("CodeOf() returned a code for a plain error")
	}
}

func TestSyncError_Unwrap(t *testing.T) {
	originalErr := fmt.Errorf("original error")
	e := &SyncError{
		Op:  OpPublish,
		Err: originalErr,
	}

	if unwrapped := e.Unwrap(); unwrapped != originalErr {
		t.Errorf("SyncError.Unwrap() = %v, want %v", unwrapped, originalErr)
	}
	if e.Message() != "original error" {
		t.Errorf("SyncError.Message() = %q", e.Message())
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", NewTimeoutError(OpRequest, fmt.Errorf("slow")), true},
		{"validation", NewValidationError(OpCreateSignType, fmt.Errorf("bad code")), false},
		{"wrapped timeout", fmt.Errorf("outer: %w", NewTimeoutError(OpRequest, fmt.Errorf("slow"))), true},
		{"plain error", fmt.Errorf("plain"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapHelpers(t *testing.T) {
	if WrapOpComponent(nil, OpJournal, "storage/sqlite") != nil {
		t.Error("WrapOpComponent(nil) should return nil")
	}
	err := WrapOpComponentCode(fmt.Errorf("disk"), OpJournal, "storage/sqlite", ErrCodeStorageFailure)
	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("expected SyncError, got %T", err)
	}
	if syncErr.Component != "storage/sqlite" || syncErr.Code != ErrCodeStorageFailure {
		t.Errorf("unexpected wrap result: %+v", syncErr)
	}
	syncErr.WithMetadata("table", "bus_events")
	if syncErr.Metadata["table"] != "bus_events" {
		t.Error("WithMetadata did not attach value")
	}
}
