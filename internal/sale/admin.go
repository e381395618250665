package sale

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// The admin surface. Every operation requires the caller to be the sale's
// admin address and is a single atomic mutation of the sale's own state; any
// outbound effect (ownership transfer, balance sweep) is returned to the
// caller for dispatch.

func (s *State) requireAdmin(caller common.Address) error {
	if caller != s.AdminAddress {
		return ErrForbidden
	}
	return nil
}

func (s *State) SetLastIndex(caller common.Address, v uint64) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.LastIndex = v
	return nil
}

func (s *State) SetAvailable(caller common.Address, v uint64) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.Available = v
	return nil
}

func (s *State) SetStartTime(caller common.Address, t int64) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.StartTime = t
	return nil
}

func (s *State) SetEndTime(caller common.Address, t int64) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.EndTime = t
	return nil
}

func (s *State) Disable(caller common.Address) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.Active = false
	return nil
}

// Enable reopens the sale. Once the inventory authority's ownership has been
// released the engine can no longer mint, so enabling fails.
func (s *State) Enable(caller common.Address) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	if !s.AuthorityOwned {
		return ErrSaleInactive
	}
	s.Active = true
	return nil
}

// SweepBalance zeroes the accumulated overhead balance and returns the swept
// amount for transfer to the admin. Sweeping decommissions the sale.
func (s *State) SweepBalance(caller common.Address) (*big.Int, error) {
	if err := s.requireAdmin(caller); err != nil {
		return nil, err
	}
	swept := s.Balance
	s.Balance = big.NewInt(0)
	s.Active = false
	return swept, nil
}

// ReleaseAuthority hands the inventory authority to newOwner. This is terminal
// for the sale: the engine cannot mint once ownership moves away, so the sale
// is forced inactive permanently. collection overrides the instruction target
// when the authority address recorded at deploy has been migrated.
func (s *State) ReleaseAuthority(caller, newOwner common.Address, collection *common.Address) (common.Address, error) {
	if err := s.requireAdmin(caller); err != nil {
		return common.Address{}, err
	}
	target := s.InventoryAuthority
	if collection != nil {
		target = *collection
	}
	s.Active = false
	s.AuthorityOwned = false
	return target, nil
}
