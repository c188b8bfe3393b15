package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/catalogxlate/internal/csvcodec"
	"github.com/JonMunkholm/catalogxlate/internal/upstream"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"missing credentials", fmt.Errorf("resolve token: %w", ErrNoCredentials), "JOB001"},
		{"missing source file", errors.New("fetch source file: imports/x.csv: file not found"), "JOB002"},
		{"run in progress", ErrRunInProgress, "JOB004"},
		{"default is the target", fmt.Errorf("resolve default locale for channel 1: %w (fr)", ErrSameLocale), "JOB007"},
		{"missing id column", csvcodec.ErrNoIDColumn, "CSV001"},
		{"empty file", csvcodec.ErrEmptyFile, "CSV003"},
		{"missing name", errors.New("name_fr: required field name_fr is empty"), "VAL001"},
		{"rate limit before api error", &upstream.RateLimitError{Exhausted: true, Attempts: 4}, "API001"},
		{"product not found", &upstream.APIError{Message: "product 5 not found"}, "API002"},
		{"api error", &upstream.APIError{StatusCode: 422, Message: "bad value"}, "API003"},
		{"deadline", errors.New("context deadline exceeded"), "SYS002"},
		{"unknown error returns default", errors.New("some random internal error"), "ERR000"},
		{"case insensitive matching", errors.New("INVALID CSV: bare quote"), "CSV002"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrNoCredentials)

	expected := "The store is not connected (Code: JOB001). Reinstall the app for this store and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil error is not user facing")
	}
	if !IsUserFacing(ErrJobNotFound) {
		t.Error("known error should be user facing")
	}
	if IsUserFacing(errors.New("random internal error xyz")) {
		t.Error("unknown error should not be user facing")
	}
}

func TestNewUserError(t *testing.T) {
	if got := NewUserError(nil); got != nil {
		t.Errorf("NewUserError(nil) = %v, want nil", got)
	}

	techErr := fmt.Errorf("claim: %w", ErrJobNotFound)
	userErr := NewUserError(techErr)
	if userErr.Error() != "Job not found" {
		t.Errorf("Error() = %q, want user message", userErr.Error())
	}
	if !errors.Is(userErr, ErrJobNotFound) {
		t.Error("Unwrap() should expose the original error")
	}
}
