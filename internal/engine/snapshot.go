package engine

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/Ton-Raffles/nft-launchpad-v1/internal/sale"
)

const saleKeyPrefix = "sale:state:"

func saleKey(addr common.Address) string {
	return saleKeyPrefix + addr.Hex()
}

func saveState(ctx context.Context, rdb *redis.Client, s *sale.State) error {
	return rdb.HSet(ctx, saleKey(s.Addr),
		"admin_key", s.AdminKey.Hex(),
		"available", s.Available,
		"price", s.Price.String(),
		"last_index", s.LastIndex,
		"inventory_authority", s.InventoryAuthority.Hex(),
		"buyer_limit", s.BuyerLimit,
		"start_time", s.StartTime,
		"end_time", s.EndTime,
		"admin_address", s.AdminAddress.Hex(),
		"shard_code", s.LedgerShardCode.Hex(),
		"affiliate_percentage", uint64(s.AffiliatePercentage),
		"affiliate_total", s.AffiliateTotal.String(),
		"active", boolField(s.Active),
		"authority_owned", boolField(s.AuthorityOwned),
		"balance", s.Balance.String(),
		"salt", uint64(s.Salt),
		"cost_base", s.Cost.Base.String(),
		"cost_per_unit", s.Cost.PerUnit.String(),
	).Err()
}

func loadState(ctx context.Context, rdb *redis.Client, addr common.Address) (*sale.State, error) {
	vals, err := rdb.HGetAll(ctx, saleKey(addr)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return stateFromMap(addr, vals)
}

func deleteState(ctx context.Context, rdb *redis.Client, addr common.Address) error {
	return rdb.Del(ctx, saleKey(addr)).Err()
}

func stateFromMap(addr common.Address, m map[string]string) (*sale.State, error) {
	available, err := strconv.ParseUint(m["available"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse available: %w", err)
	}
	lastIndex, err := strconv.ParseUint(m["last_index"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse last_index: %w", err)
	}
	buyerLimit, err := strconv.ParseUint(m["buyer_limit"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse buyer_limit: %w", err)
	}
	startTime, err := strconv.ParseInt(m["start_time"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}
	endTime, err := strconv.ParseInt(m["end_time"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse end_time: %w", err)
	}
	pct, err := strconv.ParseUint(m["affiliate_percentage"], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("parse affiliate_percentage: %w", err)
	}
	salt, err := strconv.ParseUint(m["salt"], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("parse salt: %w", err)
	}
	price, ok := new(big.Int).SetString(m["price"], 10)
	if !ok {
		return nil, fmt.Errorf("parse price %q", m["price"])
	}
	affiliateTotal, ok := new(big.Int).SetString(m["affiliate_total"], 10)
	if !ok {
		return nil, fmt.Errorf("parse affiliate_total %q", m["affiliate_total"])
	}
	balance, ok := new(big.Int).SetString(m["balance"], 10)
	if !ok {
		return nil, fmt.Errorf("parse balance %q", m["balance"])
	}
	costBase, ok := new(big.Int).SetString(m["cost_base"], 10)
	if !ok {
		return nil, fmt.Errorf("parse cost_base %q", m["cost_base"])
	}
	costPerUnit, ok := new(big.Int).SetString(m["cost_per_unit"], 10)
	if !ok {
		return nil, fmt.Errorf("parse cost_per_unit %q", m["cost_per_unit"])
	}

	return &sale.State{
		Addr:                addr,
		AdminKey:            common.HexToAddress(m["admin_key"]),
		Available:           available,
		Price:               price,
		LastIndex:           lastIndex,
		InventoryAuthority:  common.HexToAddress(m["inventory_authority"]),
		BuyerLimit:          buyerLimit,
		StartTime:           startTime,
		EndTime:             endTime,
		AdminAddress:        common.HexToAddress(m["admin_address"]),
		LedgerShardCode:     common.HexToHash(m["shard_code"]),
		AffiliatePercentage: uint16(pct),
		AffiliateTotal:      affiliateTotal,
		Active:              m["active"] == "1",
		AuthorityOwned:      m["authority_owned"] == "1",
		Balance:             balance,
		Salt:                uint16(salt),
		Cost:                sale.CostModel{Base: costBase, PerUnit: costPerUnit},
	}, nil
}

func boolField(b bool) int {
	if b {
		return 1
	}
	return 0
}
