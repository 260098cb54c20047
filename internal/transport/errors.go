package transport

import "errors"

var (
	ErrTransportNotConnected = errors.New("transport not connected")
	ErrPublishFailed         = errors.New("failed to publish message")
	ErrSubscribeFailed       = errors.New("failed to subscribe")
	ErrInvalidTopic          = errors.New("invalid topic")
	ErrInvalidMessage        = errors.New("invalid message")
)
