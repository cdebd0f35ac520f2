package runs

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrReportNotReady = errors.New("report not ready")
	ErrShuttingDown   = errors.New("run service shutting down")
)
