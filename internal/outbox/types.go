package outbox

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Outbound effects of an accepted purchase or admin operation. Every message
// is a fire-and-forget send: the engine does not wait for the consumer and
// performs no post-hoc reconciliation if one fails downstream.

// AuthorityOp discriminates messages on an inventory authority's queue.
type AuthorityOp string

const (
	OpMint              AuthorityOp = "mint"
	OpTransferOwnership AuthorityOp = "transfer_ownership"
)

// MintInstruction asks the inventory authority to mint one enumerated item to
// Recipient. ContentPath follows the collection's common-content scheme
// ("<index>.json").
type MintInstruction struct {
	Sale        common.Address `json:"sale"`
	Index       uint64         `json:"index"`
	Recipient   common.Address `json:"recipient"`
	ContentPath string         `json:"content_path"`
}

// OwnershipTransfer hands control of the inventory authority to NewOwner.
type OwnershipTransfer struct {
	Sale     common.Address `json:"sale"`
	NewOwner common.Address `json:"new_owner"`
}

// AuthorityMessage is the envelope pushed onto an authority's queue.
type AuthorityMessage struct {
	Op                AuthorityOp        `json:"op"`
	Mint              *MintInstruction   `json:"mint,omitempty"`
	OwnershipTransfer *OwnershipTransfer `json:"ownership_transfer,omitempty"`
}

// TransferKind labels a value transfer for the payment executor and for
// telemetry.
type TransferKind string

const (
	TransferProceeds TransferKind = "proceeds"
	TransferReferral TransferKind = "referral"
	TransferRefund   TransferKind = "refund"
	TransferSweep    TransferKind = "sweep"
)

// Transfer moves value out of the sale to a recipient.
type Transfer struct {
	Sale   common.Address `json:"sale"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
	Kind   TransferKind   `json:"kind"`
}

// Redis key templates
const (
	AuthorityQueueKeyFmt = "mint:queue:%s"     // %s = inventory authority address
	TransferQueueKeyFmt  = "transfer:queue:%s" // %s = sale address
)
