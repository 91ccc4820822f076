package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentity rejects a call before the store is touched.
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrInvalidMessage  = errors.New("invalid message")
	// ErrPersistence means the store was unreachable or rejected the operation.
	ErrPersistence = errors.New("persistence failure")
	// ErrPublish means the message bus was unreachable.
	ErrPublish = errors.New("publish failure")
)

func persistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

func publishError(topic string, err error) error {
	return fmt.Errorf("publish to %s: %w: %w", topic, ErrPublish, err)
}

func invalidMessage(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInvalidMessage, field, err)
}
