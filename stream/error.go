/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package stream

import "errors"

var (
	// ErrNotConnected will be returned when attempting to send an element
	// over a disconnected stream.
	ErrNotConnected = errors.New("stream: not connected")

	// ErrNotAuthenticated will be returned when attempting to perform an
	// operation that requires an authenticated stream.
	ErrNotAuthenticated = errors.New("stream: not authenticated")

	// ErrNoReply will be returned when a collect operation times out
	// before a matching reply arrives.
	ErrNoReply = errors.New("stream: no reply received")

	// ErrDisconnected will be returned when a collect operation is
	// released by connection loss.
	ErrDisconnected = errors.New("stream: disconnected while waiting for reply")

	// ErrCancelled will be returned when a collect operation is released
	// by an explicit collector cancellation.
	ErrCancelled = errors.New("stream: collector cancelled")

	// ErrFeatureNotSupported will be returned when the server lacks a
	// capability an operation depends upon.
	ErrFeatureNotSupported = errors.New("stream: feature not supported")
)
