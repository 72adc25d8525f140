package exporter

import "errors"

var (
	// ErrConfiguration is returned by Start when no fields are selected or the filter does not compile.
	ErrConfiguration = errors.New("exporter configuration error")
	// ErrConnection is returned by Start when the backend cannot be reached.
	ErrConnection = errors.New("exporter connection error")
	// ErrShipment wraps a failed batch inside a flush cycle.
	ErrShipment = errors.New("shipment failed")
	// ErrWorkerBusy is returned by Start while the worker of the previous run is still flushing.
	ErrWorkerBusy = errors.New("previous flush worker still running")
)
