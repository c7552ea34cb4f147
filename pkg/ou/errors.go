package ou

import (
	"errors"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/spread"
)

var (
	// ErrInsufficientData is returned when fewer than 2 lagged pairs are usable
	ErrInsufficientData = spread.ErrInsufficientData

	// ErrDegenerateFit is returned when the regression slope leaves theta undefined
	ErrDegenerateFit = errors.New("degenerate fit: mean-reversion speed is zero")

	// ErrInvalidParameter is returned when a model parameter is out of range
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNoSolution is returned when an optimal level cannot be bracketed
	ErrNoSolution = errors.New("no solution for optimal level")
)
