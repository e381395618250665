package authz

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var tokenBuyer = common.HexToAddress("0x1111111111111111111111111111111111111111")

const tokenIssuedAt = int64(1_800_000_000)

// ── Authorization tokens ──────────────────────────────────────────────────────

func TestToken_SignRecover(t *testing.T) {
	privKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	sig, err := Sign(privKey, tokenBuyer, tokenIssuedAt)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	signer, err := Recover(tokenBuyer, tokenIssuedAt, sig)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if signer != crypto.PubkeyToAddress(privKey.PublicKey) {
		t.Errorf("recovered %s, want signer address", signer.Hex())
	}
}

func TestToken_DifferentInstantRecoversDifferentSigner(t *testing.T) {
	privKey, _ := crypto.GenerateKey()
	sig, err := Sign(privKey, tokenBuyer, tokenIssuedAt)
	if err != nil {
		t.Fatal(err)
	}

	signer, err := Recover(tokenBuyer, tokenIssuedAt+1, sig)
	if err == nil && signer == crypto.PubkeyToAddress(privKey.PublicKey) {
		t.Fatal("token verified against a different instant")
	}
}

func TestToken_DifferentBuyerRecoversDifferentSigner(t *testing.T) {
	privKey, _ := crypto.GenerateKey()
	sig, err := Sign(privKey, tokenBuyer, tokenIssuedAt)
	if err != nil {
		t.Fatal(err)
	}

	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	signer, err := Recover(other, tokenIssuedAt, sig)
	if err == nil && signer == crypto.PubkeyToAddress(privKey.PublicKey) {
		t.Fatal("token verified for a different buyer")
	}
}

func TestToken_InvalidLength(t *testing.T) {
	if _, err := Recover(tokenBuyer, tokenIssuedAt, []byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated signature")
	}
}

func TestToken_HighVNormalized(t *testing.T) {
	privKey, _ := crypto.GenerateKey()
	sig, err := Sign(privKey, tokenBuyer, tokenIssuedAt)
	if err != nil {
		t.Fatal(err)
	}
	// Solidity-style V in {27,28} must verify too.
	sig[64] += 27

	signer, err := Recover(tokenBuyer, tokenIssuedAt, sig)
	if err != nil {
		t.Fatalf("Recover with high V: %v", err)
	}
	if signer != crypto.PubkeyToAddress(privKey.PublicKey) {
		t.Error("high-V signature did not recover the signer")
	}
}

// ── EIP-191 personal messages ─────────────────────────────────────────────────

func TestRecoverPersonal(t *testing.T) {
	privKey, _ := crypto.GenerateKey()
	msg := []byte(`{"action":"disable","nonce":"n1"}`)

	sig, err := crypto.Sign(HashPersonal(msg), privKey)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := RecoverPersonal(msg, sig)
	if err != nil {
		t.Fatalf("RecoverPersonal: %v", err)
	}
	if signer != crypto.PubkeyToAddress(privKey.PublicKey) {
		t.Errorf("recovered %s, want signer address", signer.Hex())
	}
}
