package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrWindowUnavailable is returned when the spotlight window no longer exists.
	// Recover by calling Init again.
	ErrWindowUnavailable = errors.New("spotlight window unavailable")

	// ErrWindowNotInitialized is returned by visibility operations before Init.
	ErrWindowNotInitialized = fmt.Errorf("%w: window not initialized", ErrWindowUnavailable)

	// ErrSpawnFailed is returned when the worker process cannot be located or started.
	ErrSpawnFailed = errors.New("worker spawn failed")

	// ErrWriteFailed is returned when writing to the worker's stdin fails.
	ErrWriteFailed = errors.New("worker write failed")

	// ErrWorkerAlreadySpawned is returned when Spawn is called more than once.
	ErrWorkerAlreadySpawned = errors.New("worker already spawned")

	// ErrUnknownCommand is returned for an unregistered invocable command.
	ErrUnknownCommand = errors.New("unknown command")
)
