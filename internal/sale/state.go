package sale

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Code identifies the sale state-machine template; it participates in address
// derivation so a different engine version yields different sale addresses.
var Code = crypto.Keccak256Hash([]byte("nft-launchpad/sale/v1"))

// CostModel is the explicit minimum-payment model replacing the ancestor's
// gas-metered threshold: forwarding one mint message costs PerUnit, plus a
// fixed Base per purchase.
type CostModel struct {
	Base    *big.Int
	PerUnit *big.Int
}

// Overhead returns Base + PerUnit*quantity. Monotonically non-decreasing in
// quantity.
func (m CostModel) Overhead(quantity uint64) *big.Int {
	o := new(big.Int).Mul(m.PerUnit, new(big.Int).SetUint64(quantity))
	return o.Add(o, m.Base)
}

// Params is the deploy-time configuration of one sale.
type Params struct {
	AdminKey            common.Address // purchase-authorization verification key, address form
	Available           uint64
	Price               *big.Int
	LastIndex           uint64
	InventoryAuthority  common.Address
	BuyerLimit          uint64
	StartTime           int64
	EndTime             int64
	AdminAddress        common.Address
	LedgerShardCode     common.Hash
	AffiliatePercentage uint16 // basis points; 0 disables referrals
	Cost                CostModel
}

// State is the private persistent state of one sale engine. It is owned and
// mutated exclusively by that sale's actor goroutine.
type State struct {
	Addr                common.Address
	AdminKey            common.Address
	Available           uint64
	Price               *big.Int
	LastIndex           uint64
	InventoryAuthority  common.Address
	BuyerLimit          uint64
	StartTime           int64
	EndTime             int64
	AdminAddress        common.Address
	LedgerShardCode     common.Hash
	AffiliatePercentage uint16
	AffiliateTotal      *big.Int
	Active              bool
	AuthorityOwned      bool
	Balance             *big.Int // accumulated message-forwarding overhead, sweepable by admin
	Salt                uint16
	Cost                CostModel
}

// New builds the initial state of a freshly deployed sale. The salt is
// randomized so redeploying with identical parameters yields a distinct
// address.
func New(p Params) *State {
	salt := randomSalt()
	s := &State{
		Addr:                DeriveAddress(Code, encodeInit(p, salt)),
		AdminKey:            p.AdminKey,
		Available:           p.Available,
		Price:               new(big.Int).Set(p.Price),
		LastIndex:           p.LastIndex,
		InventoryAuthority:  p.InventoryAuthority,
		BuyerLimit:          p.BuyerLimit,
		StartTime:           p.StartTime,
		EndTime:             p.EndTime,
		AdminAddress:        p.AdminAddress,
		LedgerShardCode:     p.LedgerShardCode,
		AffiliatePercentage: p.AffiliatePercentage,
		AffiliateTotal:      big.NewInt(0),
		Active:              true,
		AuthorityOwned:      true,
		Balance:             big.NewInt(0),
		Salt:                salt,
		Cost: CostModel{
			Base:    new(big.Int).Set(p.Cost.Base),
			PerUnit: new(big.Int).Set(p.Cost.PerUnit),
		},
	}
	return s
}

// DeriveAddress computes the content address of a contract instance from its
// code template and encoded initial data, before the instance exists.
func DeriveAddress(code common.Hash, initData []byte) common.Address {
	return common.BytesToAddress(crypto.Keccak256(code.Bytes(), initData)[12:])
}

func encodeInit(p Params, salt uint16) []byte {
	data := make([]byte, 0, 160)
	data = append(data, p.AdminKey.Bytes()...)
	data = appendUint64(data, p.Available)
	data = append(data, p.Price.FillBytes(make([]byte, 32))...)
	data = appendUint64(data, p.LastIndex)
	data = append(data, p.InventoryAuthority.Bytes()...)
	data = appendUint64(data, p.BuyerLimit)
	data = appendUint64(data, uint64(p.StartTime))
	data = appendUint64(data, uint64(p.EndTime))
	data = append(data, p.AdminAddress.Bytes()...)
	data = append(data, p.LedgerShardCode.Bytes()...)
	data = append(data, byte(p.AffiliatePercentage>>8), byte(p.AffiliatePercentage))
	data = append(data, byte(salt>>8), byte(salt))
	return data
}

func randomSalt() uint16 {
	var b [2]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint16(b[:])
}

func appendUint64(b []byte, v uint64) []byte {
	return append(b,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v),
	)
}
