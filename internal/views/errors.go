package views

import (
	"errors"

	"cropcast/internal/models"
)

// Error kinds reported to clients
const (
	KindInvalidParameter = "invalid_parameter"
	KindInsufficientData = "insufficient_data"
	KindError            = "error"
)

// ErrorKind classifies an analytics error
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidParameter):
		return KindInvalidParameter
	case errors.Is(err, models.ErrInsufficientData):
		return KindInsufficientData
	default:
		return KindError
	}
}
