package datasets

import "errors"

var (
	// ErrInsufficientData indicates a table too short to fill one full batch,
	// or a source that ended before the row count it reported.
	ErrInsufficientData = errors.New("datasets: insufficient data")
	// ErrInvalidConfig indicates a configuration rejected by NewWindowDataset.
	ErrInvalidConfig = errors.New("datasets: invalid config")
)
