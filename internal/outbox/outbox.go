package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// Outbox pushes outbound messages onto per-recipient Redis queues.
type Outbox struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Outbox {
	return &Outbox{rdb: rdb}
}

// EnqueueMint sends one mint instruction to the authority's queue.
func (o *Outbox) EnqueueMint(ctx context.Context, authority common.Address, ins MintInstruction) error {
	return o.pushAuthority(ctx, authority, AuthorityMessage{Op: OpMint, Mint: &ins})
}

// EnqueueOwnershipTransfer sends an ownership-transfer instruction to the
// authority's queue.
func (o *Outbox) EnqueueOwnershipTransfer(ctx context.Context, authority common.Address, msg OwnershipTransfer) error {
	return o.pushAuthority(ctx, authority, AuthorityMessage{Op: OpTransferOwnership, OwnershipTransfer: &msg})
}

// EnqueueTransfer sends a value transfer onto the sale's transfer queue.
func (o *Outbox) EnqueueTransfer(ctx context.Context, t Transfer) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transfer: %w", err)
	}
	key := fmt.Sprintf(TransferQueueKeyFmt, t.Sale.Hex())
	return o.rdb.RPush(ctx, key, string(raw)).Err()
}

func (o *Outbox) pushAuthority(ctx context.Context, authority common.Address, msg AuthorityMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal authority message: %w", err)
	}
	key := fmt.Sprintf(AuthorityQueueKeyFmt, authority.Hex())
	return o.rdb.RPush(ctx, key, string(raw)).Err()
}
