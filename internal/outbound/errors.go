package outbound

import "errors"

var (
	// ErrNoSender is returned by New without a sender.
	ErrNoSender = errors.New("outbound: sender is nil")

	// ErrInvalidTopic is returned by New for an empty or wildcard topic.
	ErrInvalidTopic = errors.New("outbound: invalid topic")

	// ErrEncode wraps codec failures when serialising a generated record.
	ErrEncode = errors.New("outbound: encoding message")

	// ErrScheduleDone is returned by Schedule.Wait when no ticks remain.
	ErrScheduleDone = errors.New("outbound: schedule finished")
)
