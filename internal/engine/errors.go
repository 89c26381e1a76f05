package engine

import "errors"

var (
	// ErrSiteNotFound is returned by Check for a name that matches no configured site
	ErrSiteNotFound = errors.New("site not found")
	// ErrSiteDisabled is returned by Check for a site switched off in the configuration
	ErrSiteDisabled = errors.New("site is disabled")
	// ErrShutdownTimeout is returned by Stop when in-flight checks outlive the grace period
	ErrShutdownTimeout = errors.New("shutdown grace period expired, abandoning in-flight checks")
	// ErrAlreadyRunning is returned by Start when the scheduling loop is active
	ErrAlreadyRunning = errors.New("engine already running")
	// ErrStopped is returned once Stop has been called
	ErrStopped = errors.New("engine stopped")
)
