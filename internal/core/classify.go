package core

import (
	"errors"

	"github.com/JonMunkholm/catalogxlate/internal/catalog"
	"github.com/JonMunkholm/catalogxlate/internal/csvcodec"
	"github.com/JonMunkholm/catalogxlate/internal/upstream"
)

// ClassifyError maps a record failure onto the error taxonomy stored with
// TranslationError rows. Rate-limit exhaustion counts as an API error.
func ClassifyError(err error) ErrorType {
	var (
		fieldErr *catalog.FieldError
		rowErr   *csvcodec.RowError
		apiErr   *upstream.APIError
		rateErr  *upstream.RateLimitError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fieldErr):
		if fieldErr.Kind == catalog.KindParse {
			return ErrorParse
		}
		return ErrorValidation
	case errors.As(err, &rowErr):
		return ErrorParse
	case errors.As(err, &apiErr), errors.As(err, &rateErr):
		return ErrorAPI
	default:
		return ErrorUnknown
	}
}
