package queue

import "errors"

var (
	// ErrBusy is returned when an operation needs an idle queue.
	ErrBusy = errors.New("queue is busy")
	// ErrUnknownQueue is returned for names the registry does not hold.
	ErrUnknownQueue = errors.New("unknown queue")
	// ErrQueueExists is returned when renaming onto an existing queue.
	ErrQueueExists = errors.New("queue already exists")
)
