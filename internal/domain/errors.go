package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCurveParams = errors.New("invalid curve parameters")
	ErrInsufficientSupply = errors.New("sell amount exceeds current supply")
	ErrStaleSnapshot      = errors.New("stale snapshot discarded")
	ErrUnknownEvent       = errors.New("unknown activity event kind")
	ErrWriteRejected      = errors.New("on-chain write rejected")
	ErrFeedRejected       = errors.New("push channel rejected connection")
	ErrWSDisconnect       = errors.New("websocket disconnected")
	ErrNoWallet           = errors.New("no wallet configured")
	ErrLockHeld           = errors.New("lock already held")
)
