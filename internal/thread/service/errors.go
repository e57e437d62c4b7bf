package service

import (
	"context"
	"errors"
	"fmt"

	"gomodmail/internal/platform"
	"gomodmail/internal/thread/repository"
)

var (
	ErrThreadNotFound      = errors.New("thread not found")
	ErrThreadNotOpen       = errors.New("thread is not open")
	ErrInvalidTransition   = errors.New("invalid thread status transition")
	ErrDeliveryUnreachable = errors.New("direct message could not be delivered")
	ErrRelayChannelGone    = errors.New("relay channel no longer exists")
	ErrStoreFailure        = errors.New("thread store failure")
)

// StoreError wraps a persistence failure. errors.Is(err, ErrStoreFailure) holds for it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreFailure }

func storeError(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrThreadNotFound)
	}
	return &StoreError{Op: op, Err: err}
}

// unreachable reports whether a direct message failure means the user cannot be reached.
func unreachable(err error) bool {
	return errors.Is(err, platform.ErrUserUnreachable) ||
		errors.Is(err, platform.ErrChannelNotFound) ||
		errors.Is(err, context.DeadlineExceeded)
}
