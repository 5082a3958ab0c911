package engine

import "errors"

var (
	// ErrBusy is returned when a generation is already in flight.
	// Requests are rejected, never queued.
	ErrBusy = errors.New("generation already in flight")

	// ErrEmergencyLocked is returned when the session has reached the
	// emergency stage; no further turns are accepted.
	ErrEmergencyLocked = errors.New("session is emergency locked")

	// ErrNoGeneration is returned by Cancel when nothing is in flight.
	ErrNoGeneration = errors.New("no generation in flight")

	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("empty message")
)
