package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable signals that the wallet RPC could not be reached. Callers
// treat the accompanying empty set as "no positive evidence of funds", not
// as an error state.
var ErrUnavailable = errors.New("ledger unavailable")

const minConfirmations = 3

// Source lists confirmed transfers addressed to a donation address.
type Source interface {
	ListTransfers(ctx context.Context, address, paymentID string, minConfirmations int) ([]Transaction, error)
}

// RequestCache memoizes ledger reads for the duration of one request or
// reconciliation pass, keyed by address (and payment id). Pass the same map
// through the call chain; a nil map disables memoization.
type RequestCache map[string]Set

// Reader fetches incoming transactions for a donation address with a short
// read-through redis cache to bound RPC load.
type Reader struct {
	source Source
	rdb    *redis.Client
	ttl    time.Duration
}

func NewReader(source Source, rdb *redis.Client, ttl time.Duration) *Reader {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Reader{source: source, rdb: rdb, ttl: ttl}
}

func cacheKey(address, paymentID string) string {
	if paymentID != "" {
		return "txs:" + address + ":" + paymentID
	}
	return "txs:" + address
}

// FetchIncoming returns all incoming transactions for the address. On RPC
// failure it returns an empty set together with ErrUnavailable; it never
// retries within a single call.
func (r *Reader) FetchIncoming(ctx context.Context, rc RequestCache, address, paymentID string) (Set, error) {
	if address == "" {
		return Set{}, nil
	}

	key := cacheKey(address, paymentID)

	if rc != nil {
		if cached, ok := rc[key]; ok {
			return cached, nil
		}
	}

	if r.rdb != nil {
		if raw, err := r.rdb.Get(ctx, key).Result(); err == nil {
			var cached Set
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				if rc != nil {
					rc[key] = cached
				}
				return cached, nil
			}
		}
	}

	txs, err := r.source.ListTransfers(ctx, address, paymentID, minConfirmations)
	if err != nil {
		log.Printf("ledger: list transfers for %s: %v", address, err)
		return Set{}, ErrUnavailable
	}

	set := Set{Txs: txs}

	if r.rdb != nil {
		if raw, err := json.Marshal(set); err == nil {
			if err := r.rdb.Set(ctx, key, raw, r.ttl).Err(); err != nil {
				log.Printf("ledger: cache write for %s: %v", address, err)
			}
		}
	}

	if rc != nil {
		rc[key] = set
	}

	return set, nil
}
