package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Ton-Raffles/nft-launchpad-v1/internal/ledger"
	"github.com/Ton-Raffles/nft-launchpad-v1/internal/outbox"
	"github.com/Ton-Raffles/nft-launchpad-v1/internal/sale"
)

// Registry hosts all live sale actors in this process and rehydrates them
// from their persisted snapshots on startup.
type Registry struct {
	baseCtx context.Context // lifetime of spawned actor goroutines
	rdb     *redis.Client
	shards  *ledger.Store
	out     *outbox.Outbox
	clock   Clock
	log     *zap.Logger

	mu      sync.RWMutex
	engines map[common.Address]*Engine
}

func NewRegistry(ctx context.Context, rdb *redis.Client, shards *ledger.Store, out *outbox.Outbox, clock Clock, log *zap.Logger) *Registry {
	return &Registry{
		baseCtx: ctx,
		rdb:     rdb,
		shards:  shards,
		out:     out,
		clock:   clock,
		log:     log,
		engines: make(map[common.Address]*Engine),
	}
}

// Deploy creates a new sale from p, persists its initial state, and starts
// its actor. The salt inside sale.New makes the derived address unique even
// for identical parameters.
func (r *Registry) Deploy(ctx context.Context, p sale.Params) (*Engine, error) {
	st := sale.New(p)
	if err := saveState(ctx, r.rdb, st); err != nil {
		return nil, fmt.Errorf("persist sale: %w", err)
	}
	r.log.Info("sale deployed",
		zap.String("sale", st.Addr.Hex()),
		zap.String("admin", st.AdminAddress.Hex()),
		zap.Uint64("available", st.Available),
	)
	return r.start(st), nil
}

// Get returns the live engine for addr.
func (r *Registry) Get(addr common.Address) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[addr]
	return e, ok
}

// Restore scans persisted sale snapshots and restarts an actor for each.
func (r *Registry) Restore(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, saleKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("scan sales: %w", err)
		}
		for _, key := range keys {
			addr := common.HexToAddress(key[len(saleKeyPrefix):])
			st, err := loadState(ctx, r.rdb, addr)
			if err != nil {
				r.log.Error("restore sale", zap.String("key", key), zap.Error(err))
				continue
			}
			if st == nil {
				continue
			}
			r.start(st)
			r.log.Info("sale restored", zap.String("sale", st.Addr.Hex()))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return nil
}

func (r *Registry) start(st *sale.State) *Engine {
	e := newEngine(st, r.rdb, r.shards, r.out, r.clock, r.log)
	e.onDecommission = r.remove
	r.mu.Lock()
	r.engines[st.Addr] = e
	r.mu.Unlock()
	go e.Run(r.baseCtx)
	return e
}

func (r *Registry) remove(addr common.Address) {
	r.mu.Lock()
	delete(r.engines, addr)
	r.mu.Unlock()
}
