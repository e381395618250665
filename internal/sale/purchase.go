package sale

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Ton-Raffles/nft-launchpad-v1/internal/authz"
)

// MaxBatch bounds the number of mint messages a single purchase may fan out
// into, matching the substrate's per-message action-count ceiling.
const MaxBatch = 100

// PurchaseRequest is one buyer's inbound purchase message.
type PurchaseRequest struct {
	Buyer     common.Address
	Payment   *big.Int
	RequestID string
	Quantity  uint64
	IssuedAt  int64
	Signature []byte
	Referrer  *common.Address
}

// Outcome describes an accepted purchase: the state mutation already applied
// and the outbound effects the engine must dispatch.
type Outcome struct {
	RequestID    string
	Buyer        common.Address
	Quantity     uint64 // effective quantity, after clamping
	FirstIndex   uint64 // first minted item index; units are FirstIndex..FirstIndex+Quantity-1
	Required     *big.Int
	Proceeds     *big.Int // forwarded to admin: gross minus affiliate cut
	AffiliateCut *big.Int
	Referrer     *common.Address // nil when no cut is paid
	Refund       *big.Int        // payment minus required, may be zero
}

// Validate runs the shard-independent checks against req in their fixed
// order. The engine calls this before touching the buyer's ledger shard, so a
// rejected message never deploys one.
func (s *State) Validate(req PurchaseRequest, now int64) error {
	signer, err := authz.Recover(req.Buyer, req.IssuedAt, req.Signature)
	if err != nil || signer != s.AdminKey {
		return ErrUnauthorized
	}
	// Single-instant freshness: the token must name the engine's current time
	// exactly, not merely a recent one.
	if req.IssuedAt != now {
		return ErrStaleAuthorization
	}
	if !s.Active || !s.AuthorityOwned {
		return ErrSaleInactive
	}
	if now < s.StartTime || now > s.EndTime {
		return ErrOutsideWindow
	}
	if req.Quantity == 0 {
		return ErrZeroQuantity
	}
	if req.Quantity > MaxBatch {
		return ErrBatchTooLarge
	}
	return nil
}

// Purchase validates req against the sale's current state and, if every check
// passes, applies the accounting mutation and returns the resulting effects.
// shardQuota is the buyer's remaining quota read from their ledger shard.
// Checks run in a fixed order and the first failing one aborts with no state
// mutation at all.
func (s *State) Purchase(req PurchaseRequest, shardQuota uint64, now int64) (*Outcome, error) {
	if err := s.Validate(req, now); err != nil {
		return nil, err
	}

	eff := min(req.Quantity, s.Available, shardQuota)
	if eff == 0 {
		return nil, ErrZeroQuantity
	}

	gross := new(big.Int).Mul(s.Price, new(big.Int).SetUint64(eff))
	overhead := s.Cost.Overhead(eff)
	required := new(big.Int).Add(gross, overhead)
	if req.Payment.Cmp(required) < 0 {
		return nil, ErrInsufficientPayment
	}

	// All checks passed; apply the mutation.
	first := s.LastIndex
	s.Available -= eff
	s.LastIndex += eff
	s.Balance.Add(s.Balance, overhead)

	cut := big.NewInt(0)
	var referrer *common.Address
	if req.Referrer != nil && s.AffiliatePercentage > 0 {
		cut.Mul(gross, big.NewInt(int64(s.AffiliatePercentage)))
		cut.Quo(cut, big.NewInt(10000))
		if cut.Sign() > 0 {
			referrer = req.Referrer
			s.AffiliateTotal.Add(s.AffiliateTotal, cut)
		}
	}

	return &Outcome{
		RequestID:    req.RequestID,
		Buyer:        req.Buyer,
		Quantity:     eff,
		FirstIndex:   first,
		Required:     required,
		Proceeds:     new(big.Int).Sub(gross, cut),
		AffiliateCut: cut,
		Referrer:     referrer,
		Refund:       new(big.Int).Sub(req.Payment, required),
	}, nil
}
