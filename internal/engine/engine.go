package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Ton-Raffles/nft-launchpad-v1/internal/ledger"
	"github.com/Ton-Raffles/nft-launchpad-v1/internal/outbox"
	"github.com/Ton-Raffles/nft-launchpad-v1/internal/sale"
)

// Each sale is a single-threaded actor: one goroutine drains the inbox and
// processes one message to completion before the next, so the sale's state
// sees no data race and no reentrancy. Concurrency exists only between sales
// and in the fan-out of outbound effects.

// ErrDecommissioned is returned for messages submitted after a balance sweep
// shut the sale down.
var ErrDecommissioned = errors.New("sale decommissioned")

// Clock supplies the engine's notion of current time. Tests pin it the way the
// ancestor's sandbox pinned its block time.
type Clock interface {
	Now() int64
}

type systemClock struct{}

func (systemClock) Now() int64 { return time.Now().Unix() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// AdminOp names one privileged operation.
type AdminOp string

const (
	OpSetLastIndex     AdminOp = "set_last_index"
	OpSetAvailable     AdminOp = "set_available"
	OpSetStartTime     AdminOp = "set_start_time"
	OpSetEndTime       AdminOp = "set_end_time"
	OpDisable          AdminOp = "disable"
	OpEnable           AdminOp = "enable"
	OpSweepBalance     AdminOp = "sweep_balance"
	OpReleaseAuthority AdminOp = "release_authority"
)

// AdminRequest is one privileged inbound message.
type AdminRequest struct {
	Caller     common.Address
	Op         AdminOp
	Counter    uint64          // set_last_index, set_available
	Time       int64           // set_start_time, set_end_time
	NewOwner   common.Address  // release_authority
	Collection *common.Address // release_authority target override
}

// Info is a point-in-time view of the sale's state for accessors.
type Info struct {
	Addr                common.Address `json:"addr"`
	Available           uint64         `json:"available"`
	Price               *big.Int       `json:"price"`
	LastIndex           uint64         `json:"last_index"`
	InventoryAuthority  common.Address `json:"inventory_authority"`
	BuyerLimit          uint64         `json:"buyer_limit"`
	StartTime           int64          `json:"start_time"`
	EndTime             int64          `json:"end_time"`
	AdminAddress        common.Address `json:"admin_address"`
	AffiliatePercentage uint16         `json:"affiliate_percentage"`
	AffiliateTotal      *big.Int       `json:"affiliate_total"`
	Active              bool           `json:"active"`
	AuthorityOwned      bool           `json:"authority_owned"`
	Balance             *big.Int       `json:"balance"`
}

type command struct {
	purchase *sale.PurchaseRequest
	admin    *AdminRequest
	info     bool
	reply    chan result
}

type result struct {
	outcome *sale.Outcome
	swept   *big.Int
	info    *Info
	err     error
}

// Engine is one sale's actor.
type Engine struct {
	state  *sale.State
	rdb    *redis.Client
	shards *ledger.Store
	out    *outbox.Outbox
	clock  Clock
	log    *zap.Logger

	inbox chan command
	done  chan struct{}

	onDecommission func(common.Address)
}

func newEngine(st *sale.State, rdb *redis.Client, shards *ledger.Store, out *outbox.Outbox, clock Clock, log *zap.Logger) *Engine {
	return &Engine{
		state:  st,
		rdb:    rdb,
		shards: shards,
		out:    out,
		clock:  clock,
		log:    log,
		inbox:  make(chan command),
		done:   make(chan struct{}),
	}
}

// Addr returns the sale's derived address.
func (e *Engine) Addr() common.Address { return e.state.Addr }

// Run drains the inbox until ctx is cancelled or the sale is decommissioned.
func (e *Engine) Run(ctx context.Context) {
	e.log.Info("sale engine started", zap.String("sale", e.state.Addr.Hex()))
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case cmd := <-e.inbox:
			e.handle(ctx, cmd)
		}
	}
}

// SubmitPurchase delivers a purchase message and waits for the synchronous
// accept/reject decision. Accepted purchases have all their effects dispatched
// before this returns.
func (e *Engine) SubmitPurchase(ctx context.Context, req sale.PurchaseRequest) (*sale.Outcome, error) {
	r, err := e.submit(ctx, command{purchase: &req})
	if err != nil {
		return nil, err
	}
	return r.outcome, r.err
}

// SubmitAdmin delivers a privileged message. For sweep_balance the returned
// amount is the swept balance; nil otherwise.
func (e *Engine) SubmitAdmin(ctx context.Context, req AdminRequest) (*big.Int, error) {
	r, err := e.submit(ctx, command{admin: &req})
	if err != nil {
		return nil, err
	}
	return r.swept, r.err
}

// Info reads the sale's current state through the inbox, so the view is
// consistent with message ordering.
func (e *Engine) Info(ctx context.Context) (*Info, error) {
	r, err := e.submit(ctx, command{info: true})
	if err != nil {
		return nil, err
	}
	return r.info, r.err
}

func (e *Engine) submit(ctx context.Context, cmd command) (result, error) {
	cmd.reply = make(chan result, 1)
	select {
	case e.inbox <- cmd:
	case <-e.done:
		return result{}, ErrDecommissioned
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r, nil
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

func (e *Engine) handle(ctx context.Context, cmd command) {
	switch {
	case cmd.purchase != nil:
		outcome, err := e.handlePurchase(ctx, *cmd.purchase)
		cmd.reply <- result{outcome: outcome, err: err}
	case cmd.admin != nil:
		swept, err := e.handleAdmin(ctx, *cmd.admin)
		cmd.reply <- result{swept: swept, err: err}
	case cmd.info:
		cmd.reply <- result{info: e.snapshotInfo()}
	}
}

func (e *Engine) handlePurchase(ctx context.Context, req sale.PurchaseRequest) (*sale.Outcome, error) {
	now := e.clock.Now()

	// Shard-independent checks first: a rejected message must not deploy the
	// buyer's ledger shard.
	if err := e.state.Validate(req, now); err != nil {
		return nil, err
	}

	shard, err := e.shards.Fetch(ctx, e.state.Addr, req.Buyer, e.state.BuyerLimit)
	if err != nil {
		e.log.Error("fetch ledger shard", zap.String("sale", e.state.Addr.Hex()), zap.Error(err))
		return nil, fmt.Errorf("fetch ledger shard: %w", err)
	}

	outcome, err := e.state.Purchase(req, shard.Available, now)
	if err != nil {
		return nil, err
	}

	// The decision is made; everything below is fire-and-forget fan-out.
	// A failed send is logged and never unwinds the accounting above.
	if err := e.shards.DebitQuota(ctx, e.state.Addr, outcome.Buyer, outcome.Quantity); err != nil {
		e.log.Warn("debit quota", zap.String("buyer", outcome.Buyer.Hex()), zap.Error(err))
	}
	for i := uint64(0); i < outcome.Quantity; i++ {
		idx := outcome.FirstIndex + i
		ins := outbox.MintInstruction{
			Sale:        e.state.Addr,
			Index:       idx,
			Recipient:   outcome.Buyer,
			ContentPath: fmt.Sprintf("%d.json", idx),
		}
		if err := e.out.EnqueueMint(ctx, e.state.InventoryAuthority, ins); err != nil {
			e.log.Warn("enqueue mint", zap.Uint64("index", idx), zap.Error(err))
		}
	}
	if outcome.Proceeds.Sign() > 0 {
		e.transfer(ctx, e.state.AdminAddress, outcome.Proceeds, outbox.TransferProceeds)
	}
	if outcome.Referrer != nil {
		// Lazily deploy the referrer's shard first so the credit lands on a
		// fully initialized hash.
		if _, err := e.shards.Fetch(ctx, e.state.Addr, *outcome.Referrer, e.state.BuyerLimit); err != nil {
			e.log.Warn("fetch referrer shard", zap.String("referrer", outcome.Referrer.Hex()), zap.Error(err))
		} else if err := e.shards.CreditAffiliate(ctx, e.state.Addr, *outcome.Referrer, outcome.AffiliateCut); err != nil {
			e.log.Warn("credit affiliate", zap.String("referrer", outcome.Referrer.Hex()), zap.Error(err))
		}
		e.transfer(ctx, *outcome.Referrer, outcome.AffiliateCut, outbox.TransferReferral)
	}
	if outcome.Refund.Sign() > 0 {
		e.transfer(ctx, outcome.Buyer, outcome.Refund, outbox.TransferRefund)
	}
	e.persist(ctx)

	e.log.Info("purchase accepted",
		zap.String("sale", e.state.Addr.Hex()),
		zap.String("request_id", outcome.RequestID),
		zap.String("buyer", outcome.Buyer.Hex()),
		zap.Uint64("quantity", outcome.Quantity),
		zap.Uint64("first_index", outcome.FirstIndex),
		zap.String("required", outcome.Required.String()),
		zap.String("refund", outcome.Refund.String()),
	)
	return outcome, nil
}

func (e *Engine) handleAdmin(ctx context.Context, req AdminRequest) (*big.Int, error) {
	switch req.Op {
	case OpSetLastIndex:
		if err := e.state.SetLastIndex(req.Caller, req.Counter); err != nil {
			return nil, err
		}
	case OpSetAvailable:
		if err := e.state.SetAvailable(req.Caller, req.Counter); err != nil {
			return nil, err
		}
	case OpSetStartTime:
		if err := e.state.SetStartTime(req.Caller, req.Time); err != nil {
			return nil, err
		}
	case OpSetEndTime:
		if err := e.state.SetEndTime(req.Caller, req.Time); err != nil {
			return nil, err
		}
	case OpDisable:
		if err := e.state.Disable(req.Caller); err != nil {
			return nil, err
		}
	case OpEnable:
		if err := e.state.Enable(req.Caller); err != nil {
			return nil, err
		}
	case OpSweepBalance:
		swept, err := e.state.SweepBalance(req.Caller)
		if err != nil {
			return nil, err
		}
		if swept.Sign() > 0 {
			e.transfer(ctx, e.state.AdminAddress, swept, outbox.TransferSweep)
		}
		e.decommission(ctx)
		return swept, nil
	case OpReleaseAuthority:
		target, err := e.state.ReleaseAuthority(req.Caller, req.NewOwner, req.Collection)
		if err != nil {
			return nil, err
		}
		msg := outbox.OwnershipTransfer{Sale: e.state.Addr, NewOwner: req.NewOwner}
		if err := e.out.EnqueueOwnershipTransfer(ctx, target, msg); err != nil {
			e.log.Warn("enqueue ownership transfer", zap.String("sale", e.state.Addr.Hex()), zap.Error(err))
		}
	default:
		return nil, fmt.Errorf("unknown admin op %q", req.Op)
	}

	e.persist(ctx)
	e.log.Info("admin operation applied",
		zap.String("sale", e.state.Addr.Hex()),
		zap.String("op", string(req.Op)),
		zap.String("caller", req.Caller.Hex()),
	)
	return nil, nil
}

func (e *Engine) transfer(ctx context.Context, to common.Address, amount *big.Int, kind outbox.TransferKind) {
	t := outbox.Transfer{Sale: e.state.Addr, To: to, Amount: amount, Kind: kind}
	if err := e.out.EnqueueTransfer(ctx, t); err != nil {
		e.log.Warn("enqueue transfer",
			zap.String("to", to.Hex()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

func (e *Engine) persist(ctx context.Context) {
	if err := saveState(ctx, e.rdb, e.state); err != nil {
		e.log.Error("persist sale state", zap.String("sale", e.state.Addr.Hex()), zap.Error(err))
	}
}

func (e *Engine) decommission(ctx context.Context) {
	if err := deleteState(ctx, e.rdb, e.state.Addr); err != nil {
		e.log.Error("delete sale state", zap.String("sale", e.state.Addr.Hex()), zap.Error(err))
	}
	close(e.done)
	if e.onDecommission != nil {
		e.onDecommission(e.state.Addr)
	}
	e.log.Info("sale decommissioned", zap.String("sale", e.state.Addr.Hex()))
}

func (e *Engine) snapshotInfo() *Info {
	return &Info{
		Addr:                e.state.Addr,
		Available:           e.state.Available,
		Price:               new(big.Int).Set(e.state.Price),
		LastIndex:           e.state.LastIndex,
		InventoryAuthority:  e.state.InventoryAuthority,
		BuyerLimit:          e.state.BuyerLimit,
		StartTime:           e.state.StartTime,
		EndTime:             e.state.EndTime,
		AdminAddress:        e.state.AdminAddress,
		AffiliatePercentage: e.state.AffiliatePercentage,
		AffiliateTotal:      new(big.Int).Set(e.state.AffiliateTotal),
		Active:              e.state.Active,
		AuthorityOwned:      e.state.AuthorityOwned,
		Balance:             new(big.Int).Set(e.state.Balance),
	}
}
