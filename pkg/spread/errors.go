package spread

import "errors"

var (
	// ErrInvalidInput is returned when a price is not strictly positive
	ErrInvalidInput = errors.New("invalid input: prices must be strictly positive")

	// ErrInsufficientData is returned when fewer than 2 usable points remain after alignment
	ErrInsufficientData = errors.New("insufficient data")
)
