package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/Ton-Raffles/nft-launchpad-v1/internal/authz"
)

// Prints a single-instant purchase authorization for a buyer. The token is
// valid only at the exact second it names, so run this at purchase time.
func main() {
	keyHex := flag.String("key", os.Getenv("ADMIN_SIGNING_KEY"), "admin secp256k1 private key (hex)")
	buyerHex := flag.String("buyer", "", "buyer address")
	at := flag.Int64("at", time.Now().Unix(), "issuedAt unix seconds")
	flag.Parse()

	if *keyHex == "" || !common.IsHexAddress(*buyerHex) {
		fmt.Fprintln(os.Stderr, "usage: authtoken -key <hex> -buyer <address> [-at <unix>]")
		os.Exit(2)
	}

	privKey, err := crypto.HexToECDSA(*keyHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse key: %v\n", err)
		os.Exit(1)
	}
	buyer := common.HexToAddress(*buyerHex)

	sig, err := authz.Sign(privKey, buyer, *at)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("admin:      %s\n", crypto.PubkeyToAddress(privKey.PublicKey))
	fmt.Printf("buyer:      %s\n", buyer)
	fmt.Printf("issued_at:  %d\n", *at)
	fmt.Printf("request_id: %s\n", uuid.NewString())
	fmt.Printf("signature:  %s\n", hex.EncodeToString(sig))
}
