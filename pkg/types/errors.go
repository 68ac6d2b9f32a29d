package types

import "errors"

// ErrInsufficientData indicates a series is shorter than the longest
// rolling window a computation requires. Callers receive it instead of a
// silently zeroed result.
var ErrInsufficientData = errors.New("insufficient data")

// ErrInvalidConfig indicates configuration that fails validation, including
// unknown strategy or sizing method names. It is raised at parse time,
// never during evaluation.
var ErrInvalidConfig = errors.New("invalid configuration")
