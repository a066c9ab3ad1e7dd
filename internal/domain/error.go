package domain

import "errors"

var (
	// ErrNodeUnreachable means an RPC endpoint timed out or failed at the transport level.
	ErrNodeUnreachable = errors.New("rpc node unreachable")

	// ErrMalformedResponse means an endpoint answered but without a usable `result`.
	ErrMalformedResponse = errors.New("malformed rpc response")

	// ErrDecodeUnsupported means calldata or a return value could not be decoded.
	ErrDecodeUnsupported = errors.New("decode unsupported")

	// ErrFeedUnavailable means a threat-intelligence or phishing feed could not be refreshed.
	ErrFeedUnavailable = errors.New("feed unavailable")

	// ErrVerificationFailed means every fallback for a check was exhausted.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrSnapshotNotFound means no durable snapshot exists yet.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)
