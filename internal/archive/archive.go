// Package archive keeps a copy of every verified inbound gateway message for
// later dispute handling. Unsigned or forged messages are never stored, so the
// public callback routes cannot be used to fill the bucket.
package archive

import (
	"context"
	"net/url"
	"time"
)

type Message struct {
	Gateway       string     `json:"gateway"`
	Kind          string     `json:"kind"`
	ReceivedAt    time.Time  `json:"received_at"`
	TransactionID string     `json:"transaction_id,omitempty"`
	Params        url.Values `json:"params"`
}

type Archiver interface {
	Store(ctx context.Context, msg Message) error
}

// Nop discards messages; used when no bucket is configured.
type Nop struct{}

func (Nop) Store(context.Context, Message) error { return nil }
