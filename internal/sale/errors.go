package sale

// Failure is a terminal, synchronous rejection of a single inbound message.
// No partial state mutation survives a Failure. Codes stay in the 7xx range
// the on-chain ancestor of this engine used for its exit codes.
type Failure struct {
	Code int
	Name string
}

func (f *Failure) Error() string { return f.Name }

var (
	ErrUnauthorized        = &Failure{Code: 701, Name: "unauthorized"}
	ErrStaleAuthorization  = &Failure{Code: 702, Name: "stale authorization"}
	ErrInsufficientPayment = &Failure{Code: 703, Name: "insufficient payment"}
	ErrOutsideWindow       = &Failure{Code: 704, Name: "outside sale window"}
	ErrZeroQuantity        = &Failure{Code: 705, Name: "zero quantity"}
	ErrBatchTooLarge       = &Failure{Code: 706, Name: "batch too large"}
	ErrSaleInactive        = &Failure{Code: 707, Name: "sale inactive"}
	ErrForbidden           = &Failure{Code: 708, Name: "forbidden"}
)
