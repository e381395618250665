package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
)

// A ledger shard is the per-(sale, identity) sub-account holding a buyer's
// remaining quota and a referrer's accumulated earnings. Shards keep the sale
// engine's own footprint O(1): the unbounded buyer/referrer map is split into
// independently addressed Redis hashes derived from (code, sale, identity).

const shardKeyPrefix = "ledger:"

// DefaultCode is the ledger shard code template hash used in address
// derivation when no override is configured.
var DefaultCode = crypto.Keccak256Hash([]byte("nft-launchpad/ledger-shard/v1"))

// Shard is one identity's sub-account under one sale.
type Shard struct {
	Sale           common.Address
	Identity       common.Address
	Available      uint64   // remaining purchase quota as a buyer
	TotalAffiliate *big.Int // cumulative referral earnings
}

// Store reads and mutates ledger shards. Each shard is mutated only by its
// owning sale's actor goroutine, so read-modify-write on a single shard is
// race-free.
type Store struct {
	rdb  *redis.Client
	code common.Hash
}

func NewStore(rdb *redis.Client, code common.Hash) *Store {
	return &Store{rdb: rdb, code: code}
}

// Address derives the shard's deterministic address from
// (code, sale, identity), before the shard exists.
func (st *Store) Address(sale, identity common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(st.code.Bytes(), sale.Bytes(), identity.Bytes())[12:])
}

func shardKey(addr common.Address) string {
	return shardKeyPrefix + addr.Hex()
}

// Fetch returns the shard for (sale, identity), lazily deploying it with
// available = buyerLimit on first reference.
func (st *Store) Fetch(ctx context.Context, sale, identity common.Address, buyerLimit uint64) (*Shard, error) {
	s, err := st.Get(ctx, sale, identity)
	if err != nil {
		return nil, err
	}
	if s != nil {
		return s, nil
	}

	key := shardKey(st.Address(sale, identity))
	err = st.rdb.HSet(ctx, key,
		"sale", sale.Hex(),
		"identity", identity.Hex(),
		"available", buyerLimit,
		"total_affiliate", "0",
	).Err()
	if err != nil {
		return nil, fmt.Errorf("deploy shard: %w", err)
	}
	return &Shard{
		Sale:           sale,
		Identity:       identity,
		Available:      buyerLimit,
		TotalAffiliate: big.NewInt(0),
	}, nil
}

// Get returns the shard if it exists, nil otherwise. Read-only accessor; never
// deploys.
func (st *Store) Get(ctx context.Context, sale, identity common.Address) (*Shard, error) {
	vals, err := st.rdb.HGetAll(ctx, shardKey(st.Address(sale, identity))).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return shardFromMap(vals)
}

// DebitQuota decreases the shard's remaining quota by amount, floored at zero.
// The engine clamps before debiting, so the floor only matters if state and
// shard have drifted.
func (st *Store) DebitQuota(ctx context.Context, sale, identity common.Address, amount uint64) error {
	key := shardKey(st.Address(sale, identity))
	left, err := st.rdb.HIncrBy(ctx, key, "available", -int64(amount)).Result()
	if err != nil {
		return fmt.Errorf("debit quota: %w", err)
	}
	if left < 0 {
		return st.rdb.HSet(ctx, key, "available", 0).Err()
	}
	return nil
}

// CreditAffiliate adds amount to the shard's cumulative referral earnings.
// Unconditional and monotonic.
func (st *Store) CreditAffiliate(ctx context.Context, sale, identity common.Address, amount *big.Int) error {
	key := shardKey(st.Address(sale, identity))
	cur, err := st.rdb.HGet(ctx, key, "total_affiliate").Result()
	if err == redis.Nil {
		cur = "0"
	} else if err != nil {
		return fmt.Errorf("credit affiliate: %w", err)
	}
	total, ok := new(big.Int).SetString(cur, 10)
	if !ok {
		return fmt.Errorf("credit affiliate: corrupt total %q", cur)
	}
	total.Add(total, amount)
	return st.rdb.HSet(ctx, key, "total_affiliate", total.String()).Err()
}

func shardFromMap(m map[string]string) (*Shard, error) {
	available, err := strconv.ParseUint(m["available"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse shard available: %w", err)
	}
	total, ok := new(big.Int).SetString(m["total_affiliate"], 10)
	if !ok {
		return nil, fmt.Errorf("parse shard total_affiliate %q", m["total_affiliate"])
	}
	return &Shard{
		Sale:           common.HexToAddress(m["sale"]),
		Identity:       common.HexToAddress(m["identity"]),
		Available:      available,
		TotalAffiliate: total,
	}, nil
}
