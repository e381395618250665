package api

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Ton-Raffles/nft-launchpad-v1/internal/authz"
	"github.com/Ton-Raffles/nft-launchpad-v1/internal/engine"
	"github.com/Ton-Raffles/nft-launchpad-v1/internal/ledger"
	"github.com/Ton-Raffles/nft-launchpad-v1/internal/outbox"
	"github.com/Ton-Raffles/nft-launchpad-v1/internal/sale"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testStart = int64(1_800_000_000)
	testEnd   = int64(1_900_000_000)
	testNow   = testStart
)

var (
	testAdmin     = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testAuthority = common.HexToAddress("0x4444444444444444444444444444444444444444")
	testBuyer     = common.HexToAddress("0x1111111111111111111111111111111111111111")

	testCost = sale.CostModel{Base: big.NewInt(10_000_000), PerUnit: big.NewInt(90_000_000)}
)

type fixedClock int64

func (c fixedClock) Now() int64 { return int64(c) }

type testServer struct {
	router *gin.Engine
	reg    *engine.Registry
	key    *ecdsa.PrivateKey
	caller common.Address // identity injected by the stubbed admin middleware
}

// newTestServer wires the handler behind a stub middleware so handler tests
// exercise routing and status mapping without real signature headers.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	shards := ledger.NewStore(rdb, ledger.DefaultCode)
	reg := engine.NewRegistry(ctx, rdb, shards, outbox.New(rdb), fixedClock(testNow), zap.NewNop())

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	srv := &testServer{reg: reg, key: key, caller: testAdmin}
	h := NewHandler(reg, shards, testCost, ledger.DefaultCode, zap.NewNop())
	router := gin.New()
	public := router.Group("/api/v1")
	admin := router.Group("/api/v1")
	admin.Use(func(c *gin.Context) {
		c.Set(callerKey, srv.caller)
		c.Next()
	})
	h.Register(public, admin)
	srv.router = router
	return srv
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) deploy(t *testing.T) common.Address {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/sale", gin.H{
		"admin_key":            crypto.PubkeyToAddress(s.key.PublicKey).Hex(),
		"available":            20,
		"price":                "2000000000",
		"inventory_authority":  testAuthority.Hex(),
		"buyer_limit":          5,
		"start_time":           testStart,
		"end_time":             testEnd,
		"admin_address":        testAdmin.Hex(),
		"affiliate_percentage": 500,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("deploy: status %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Addr string `json:"addr"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return common.HexToAddress(resp.Addr)
}

func (s *testServer) purchaseBody(t *testing.T, quantity uint64, payment string) gin.H {
	t.Helper()
	sig, err := authz.Sign(s.key, testBuyer, testNow)
	if err != nil {
		t.Fatal(err)
	}
	return gin.H{
		"buyer":     testBuyer.Hex(),
		"payment":   payment,
		"quantity":  quantity,
		"issued_at": testNow,
		"signature": hex.EncodeToString(sig),
	}
}

// ── Deploy ────────────────────────────────────────────────────────────────────

func TestDeploy_AndInfo(t *testing.T) {
	s := newTestServer(t)
	addr := s.deploy(t)

	w := s.do(t, http.MethodGet, "/api/v1/sale/"+addr.Hex(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("info: status %d body %s", w.Code, w.Body.String())
	}
	var info engine.Info
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.Available != 20 || info.BuyerLimit != 5 || !info.Active {
		t.Errorf("info: %+v", info)
	}
}

func TestDeploy_ForbiddenForNonAdminCaller(t *testing.T) {
	s := newTestServer(t)
	s.caller = testBuyer // signed request from someone else

	w := s.do(t, http.MethodPost, "/api/v1/sale", gin.H{
		"admin_key":           crypto.PubkeyToAddress(s.key.PublicKey).Hex(),
		"available":           20,
		"price":               "2000000000",
		"inventory_authority": testAuthority.Hex(),
		"buyer_limit":         5,
		"start_time":          testStart,
		"end_time":            testEnd,
		"admin_address":       testAdmin.Hex(),
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
}

func TestDeploy_RejectsBadAddress(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/sale", gin.H{
		"admin_key":           "not-an-address",
		"available":           20,
		"price":               "2000000000",
		"inventory_authority": testAuthority.Hex(),
		"buyer_limit":         5,
		"start_time":          testStart,
		"end_time":            testEnd,
		"admin_address":       testAdmin.Hex(),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
}

// ── Purchase ──────────────────────────────────────────────────────────────────

func TestPurchase_Accepted(t *testing.T) {
	s := newTestServer(t)
	addr := s.deploy(t)

	w := s.do(t, http.MethodPost, "/api/v1/sale/"+addr.Hex()+"/purchase",
		s.purchaseBody(t, 2, "10000000000"))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		RequestID  string `json:"request_id"`
		Quantity   uint64 `json:"quantity"`
		FirstIndex uint64 `json:"first_index"`
		Required   string `json:"required"`
		Refund     string `json:"refund"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Quantity != 2 || resp.FirstIndex != 0 {
		t.Errorf("response: %+v", resp)
	}
	if resp.RequestID == "" {
		t.Error("no request id assigned")
	}
	if resp.Required != "4190000000" {
		t.Errorf("required: %s", resp.Required)
	}

	// Shard view reflects the debit.
	w = s.do(t, http.MethodGet, "/api/v1/sale/"+addr.Hex()+"/ledger/"+testBuyer.Hex(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("shard: status %d body %s", w.Code, w.Body.String())
	}
	var shard struct {
		Available uint64 `json:"available"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &shard); err != nil {
		t.Fatal(err)
	}
	if shard.Available != 3 {
		t.Errorf("shard available: got %d want 3", shard.Available)
	}
}

func TestPurchase_BadSignature(t *testing.T) {
	s := newTestServer(t)
	addr := s.deploy(t)

	body := s.purchaseBody(t, 1, "10000000000")
	body["signature"] = "deadbeef"

	w := s.do(t, http.MethodPost, "/api/v1/sale/"+addr.Hex()+"/purchase", body)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != sale.ErrUnauthorized.Code {
		t.Errorf("code: got %d want %d", resp.Code, sale.ErrUnauthorized.Code)
	}
}

func TestPurchase_UnknownSale(t *testing.T) {
	s := newTestServer(t)
	unknown := common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")

	w := s.do(t, http.MethodPost, "/api/v1/sale/"+unknown.Hex()+"/purchase",
		s.purchaseBody(t, 1, "10000000000"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
}

func TestPurchase_InactiveConflict(t *testing.T) {
	s := newTestServer(t)
	addr := s.deploy(t)

	if w := s.do(t, http.MethodPost, "/api/v1/sale/"+addr.Hex()+"/admin/disable", nil); w.Code != http.StatusOK {
		t.Fatalf("disable: status %d body %s", w.Code, w.Body.String())
	}
	w := s.do(t, http.MethodPost, "/api/v1/sale/"+addr.Hex()+"/purchase",
		s.purchaseBody(t, 1, "10000000000"))
	if w.Code != http.StatusConflict {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != sale.ErrSaleInactive.Code {
		t.Errorf("code: got %d want %d", resp.Code, sale.ErrSaleInactive.Code)
	}
}

// ── Admin routes ──────────────────────────────────────────────────────────────

func TestAdmin_SetAvailable(t *testing.T) {
	s := newTestServer(t)
	addr := s.deploy(t)

	w := s.do(t, http.MethodPost, "/api/v1/sale/"+addr.Hex()+"/admin/available", gin.H{"counter": 50})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/v1/sale/"+addr.Hex(), nil)
	var info engine.Info
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.Available != 50 {
		t.Errorf("available: got %d want 50", info.Available)
	}
}

func TestAdmin_ForbiddenCaller(t *testing.T) {
	s := newTestServer(t)
	addr := s.deploy(t)
	s.caller = testBuyer

	w := s.do(t, http.MethodPost, "/api/v1/sale/"+addr.Hex()+"/admin/disable", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
}

func TestAdmin_UnknownOp(t *testing.T) {
	s := newTestServer(t)
	addr := s.deploy(t)

	w := s.do(t, http.MethodPost, "/api/v1/sale/"+addr.Hex()+"/admin/self-destruct", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
}

func TestAdmin_Sweep(t *testing.T) {
	s := newTestServer(t)
	addr := s.deploy(t)

	if w := s.do(t, http.MethodPost, "/api/v1/sale/"+addr.Hex()+"/purchase",
		s.purchaseBody(t, 2, "10000000000")); w.Code != http.StatusOK {
		t.Fatalf("purchase: status %d body %s", w.Code, w.Body.String())
	}

	w := s.do(t, http.MethodPost, "/api/v1/sale/"+addr.Hex()+"/admin/sweep", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sweep: status %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Swept string `json:"swept"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if want := testCost.Overhead(2).String(); resp.Swept != want {
		t.Errorf("swept: got %s want %s", resp.Swept, want)
	}

	// Swept sales disappear from the registry.
	if w := s.do(t, http.MethodGet, "/api/v1/sale/"+addr.Hex(), nil); w.Code != http.StatusNotFound {
		t.Errorf("info after sweep: status %d", w.Code)
	}
}

func TestAdmin_TransferOwnership(t *testing.T) {
	s := newTestServer(t)
	addr := s.deploy(t)
	newOwner := common.HexToAddress("0x7777777777777777777777777777777777777777")

	w := s.do(t, http.MethodPost, "/api/v1/sale/"+addr.Hex()+"/admin/transfer-ownership",
		gin.H{"new_owner": newOwner.Hex()})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/v1/sale/"+addr.Hex(), nil)
	var info engine.Info
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.Active || info.AuthorityOwned {
		t.Errorf("sale still live after ownership transfer: %+v", info)
	}
}

func TestAdmin_TransferOwnershipRequiresNewOwner(t *testing.T) {
	s := newTestServer(t)
	addr := s.deploy(t)

	w := s.do(t, http.MethodPost, "/api/v1/sale/"+addr.Hex()+"/admin/transfer-ownership", gin.H{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
}

// ── Ledger view ───────────────────────────────────────────────────────────────

func TestShard_NotFoundBeforeFirstPurchase(t *testing.T) {
	s := newTestServer(t)
	addr := s.deploy(t)

	path := fmt.Sprintf("/api/v1/sale/%s/ledger/%s", addr.Hex(), testBuyer.Hex())
	if w := s.do(t, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}
