// Package stream consumes the bonding-curve firehose: it decodes account
// and transaction updates, maintains the dual-address index, batches rows
// for the flush protocol, and drives the per-price side effects.
package stream

import (
	"context"
)

// BondingCurveProgram is the on-chain program every subscription filters on.
const BondingCurveProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

// completeFlagOffset is the byte offset of the curve account's complete
// flag: an 8-byte discriminator followed by five u64 fields.
const completeFlagOffset = 8 + 5*8

// SubscribeRequest carries the two firehose filters. It is re-sent on every
// connect.
type SubscribeRequest struct {
	Commitment   string
	Accounts     AccountFilter
	Transactions TransactionFilter
}

// AccountFilter selects program-owned accounts by a memcmp on one byte.
// Matching on a zero complete flag keeps graduated curves out of the feed.
type AccountFilter struct {
	Owner      string
	FlagOffset int
	FlagValue  byte
}

// TransactionFilter selects confirmed transactions touching the program.
type TransactionFilter struct {
	AccountInclude []string
	ExcludeVotes   bool
	ExcludeFailed  bool
}

// AccountUpdate is one raw account notification.
type AccountUpdate struct {
	Pubkey string
	Owner  string
	Data   []byte
	Slot   uint64
}

// TransactionUpdate is one decoded transaction notification. TokenMint may
// be empty when the provider only exposes the curve account; the handler
// resolves it through the dual-address index.
type TransactionUpdate struct {
	Signature   string
	Slot        uint64
	Fee         uint64
	Logs        []string
	Data        []byte
	Accounts    []string
	UserAddress string
	TokenMint   string
	TokenAmount float64
	SolAmount   float64
}

// Update is one firehose message; exactly one field is set.
type Update struct {
	Account     *AccountUpdate
	Transaction *TransactionUpdate
}

// Firehose is the provider contract. Subscribe returns a channel that closes
// when the stream errors or ends; the client redials and re-subscribes.
type Firehose interface {
	Subscribe(ctx context.Context, req SubscribeRequest) (<-chan Update, error)
	Close() error
}

// DefaultSubscribeRequest builds the standard two-filter subscription.
func DefaultSubscribeRequest() SubscribeRequest {
	return SubscribeRequest{
		Commitment: "confirmed",
		Accounts: AccountFilter{
			Owner:      BondingCurveProgram,
			FlagOffset: completeFlagOffset,
			FlagValue:  0x00,
		},
		Transactions: TransactionFilter{
			AccountInclude: []string{BondingCurveProgram},
			ExcludeVotes:   true,
			ExcludeFailed:  true,
		},
	}
}
