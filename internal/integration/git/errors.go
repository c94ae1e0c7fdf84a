package git

import "errors"

// ErrWorkerBusy indicates a worker run is still in flight.
var ErrWorkerBusy = errors.New("git worker busy")
