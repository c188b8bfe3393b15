package core

// validation.go checks job requests before they are stored. A job that
// passes here can still fail when it runs; this only rejects requests that
// could never succeed.

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid job request")

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Request field name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationResult contains every problem found in a request.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// Err folds the result into one error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

// localePattern accepts codes such as "en", "fr-CA" and "zh-Hans-CN".
var localePattern = regexp.MustCompile(`^[a-zA-Z]{2,3}(-[a-zA-Z0-9]{2,8})*$`)

// ValidateNewJob checks a job request.
func ValidateNewJob(job NewJob) ValidationResult {
	result := ValidationResult{Valid: true}
	add := func(field, value, msg string) {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{Field: field, Value: value, Message: msg})
	}

	if strings.TrimSpace(job.StoreHash) == "" {
		add("storeHash", job.StoreHash, "is required")
	}
	if !job.JobType.Valid() {
		add("jobType", string(job.JobType), "must be import or export")
	}
	if job.ChannelID <= 0 {
		add("channelId", fmt.Sprint(job.ChannelID), "must be a positive channel id")
	}
	if !localePattern.MatchString(job.Locale) {
		add("locale", job.Locale, "must be a locale code such as fr or fr-CA")
	}
	if job.DefaultLocale != "" {
		if !localePattern.MatchString(job.DefaultLocale) {
			add("defaultLocale", job.DefaultLocale, "must be a locale code such as en")
		} else if strings.EqualFold(job.DefaultLocale, job.Locale) {
			add("locale", job.Locale, "must differ from the default locale")
		}
	}
	if job.JobType == JobImport && (job.FileURL == nil || *job.FileURL == "") {
		add("fileUrl", "", "is required for import jobs")
	}

	return result
}
