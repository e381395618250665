package authz

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// An authorization token is the admin's signature over (buyer, issuedAt). It is
// valid only at the exact instant it names, so the admin co-signs every
// purchase attempt freshly and a captured token cannot be replayed later.

var tokenPrefix = []byte("launchpad/authorize\n")

// Digest builds keccak256(prefix || buyer || issuedAt).
func Digest(buyer common.Address, issuedAt int64) []byte {
	data := make([]byte, 0, len(tokenPrefix)+common.AddressLength+8)
	data = append(data, tokenPrefix...)
	data = append(data, buyer.Bytes()...)
	data = appendInt64(data, issuedAt)
	return crypto.Keccak256(data)
}

// Sign produces a 65-byte (R || S || V) authorization token for buyer at issuedAt.
func Sign(privKey *ecdsa.PrivateKey, buyer common.Address, issuedAt int64) ([]byte, error) {
	return crypto.Sign(Digest(buyer, issuedAt), privKey)
}

// Recover extracts the token issuer's address. sig must be 65 bytes, with V in
// {0,1} or {27,28}.
func Recover(buyer common.Address, issuedAt int64, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errors.New("invalid signature length")
	}
	sigCopy := make([]byte, 65)
	copy(sigCopy, sig)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}
	pub, err := crypto.SigToPub(Digest(buyer, issuedAt), sigCopy)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func appendInt64(b []byte, v int64) []byte {
	return append(b,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v),
	)
}
