package bus

import "errors"

// ErrEmptyPayload is returned when an Envelope with a zero-length payload is
// published (invariant I5: envelopes must carry a non-empty payload).
var ErrEmptyPayload = errors.New("bus: envelope payload must not be empty")

// ErrMessageTooLarge is returned when an Envelope exceeds the bus's
// configured maximum message size (invariant I6).
var ErrMessageTooLarge = errors.New("bus: envelope exceeds maximum message size")

// ErrClosed is returned by any operation attempted on a closed Bus or a
// Subscription whose Bus has been closed.
var ErrClosed = errors.New("bus: closed")

// ErrTransport wraps a failure in the underlying transport (connection
// drop, broker unavailable, publish rejected). Use errors.Is(err,
// ErrTransport) to distinguish transient transport failures from
// validation failures.
var ErrTransport = errors.New("bus: transport error")

// ErrSubjectEmpty is returned when Publish or Subscribe is called with an
// empty subject.
var ErrSubjectEmpty = errors.New("bus: subject must not be empty")

// ErrIDEmpty is returned when an Envelope with no id is published
// (invariant I5: every envelope must carry a non-nil id).
var ErrIDEmpty = errors.New("bus: envelope id must not be empty")
