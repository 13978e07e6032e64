package device

import "errors"

var (
	ErrNotConnected     = errors.New("device is not connected")
	ErrAlreadyConnected = errors.New("device is already connected")
	ErrPortUnavailable  = errors.New("serial port is not available")
	ErrMeasuring        = errors.New("measurement in progress")
)
