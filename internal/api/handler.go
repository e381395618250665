package api

import (
	"encoding/hex"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ton-Raffles/nft-launchpad-v1/internal/engine"
	"github.com/Ton-Raffles/nft-launchpad-v1/internal/ledger"
	"github.com/Ton-Raffles/nft-launchpad-v1/internal/sale"
)

// Handler is the thin HTTP glue over the sale engines. All real validation
// happens inside the engine actors; the handler only parses, dispatches, and
// maps the failure taxonomy onto status codes.
type Handler struct {
	reg       *engine.Registry
	shards    *ledger.Store
	cost      sale.CostModel
	shardCode common.Hash
	log       *zap.Logger
}

func NewHandler(reg *engine.Registry, shards *ledger.Store, cost sale.CostModel, shardCode common.Hash, log *zap.Logger) *Handler {
	return &Handler{reg: reg, shards: shards, cost: cost, shardCode: shardCode, log: log}
}

// Register mounts the public routes on public and the privileged ones on
// admin (which must already carry AuthMiddleware).
func (h *Handler) Register(public, admin *gin.RouterGroup) {
	public.POST("/sale/:addr/purchase", h.handlePurchase)
	public.GET("/sale/:addr", h.handleInfo)
	public.GET("/sale/:addr/ledger/:identity", h.handleShard)

	admin.POST("/sale", h.handleDeploy)
	admin.POST("/sale/:addr/admin/:op", h.handleAdmin)
}

type deployRequest struct {
	AdminKey            string `json:"admin_key" binding:"required"`
	Available           uint64 `json:"available"`
	Price               string `json:"price" binding:"required"`
	LastIndex           uint64 `json:"last_index"`
	InventoryAuthority  string `json:"inventory_authority" binding:"required"`
	BuyerLimit          uint64 `json:"buyer_limit" binding:"required"`
	StartTime           int64  `json:"start_time" binding:"required"`
	EndTime             int64  `json:"end_time" binding:"required"`
	AdminAddress        string `json:"admin_address" binding:"required"`
	AffiliatePercentage uint16 `json:"affiliate_percentage"`
}

func (h *Handler) handleDeploy(c *gin.Context) {
	var req deployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, a := range []string{req.AdminKey, req.InventoryAuthority, req.AdminAddress} {
		if !common.IsHexAddress(a) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address: " + a})
			return
		}
	}
	price, ok := new(big.Int).SetString(req.Price, 10)
	if !ok || price.Sign() < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}
	adminAddr := common.HexToAddress(req.AdminAddress)
	if caller(c) != adminAddr {
		c.JSON(http.StatusForbidden, gin.H{"code": sale.ErrForbidden.Code, "error": sale.ErrForbidden.Name})
		return
	}

	e, err := h.reg.Deploy(c.Request.Context(), sale.Params{
		AdminKey:            common.HexToAddress(req.AdminKey),
		Available:           req.Available,
		Price:               price,
		LastIndex:           req.LastIndex,
		InventoryAuthority:  common.HexToAddress(req.InventoryAuthority),
		BuyerLimit:          req.BuyerLimit,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		AdminAddress:        adminAddr,
		LedgerShardCode:     h.shardCode,
		AffiliatePercentage: req.AffiliatePercentage,
		Cost:                h.cost,
	})
	if err != nil {
		h.log.Error("deploy sale", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"addr": e.Addr().Hex()})
}

type purchaseRequest struct {
	Buyer     string `json:"buyer" binding:"required"`
	Payment   string `json:"payment" binding:"required"`
	RequestID string `json:"request_id"`
	Quantity  uint64 `json:"quantity"`
	IssuedAt  int64  `json:"issued_at" binding:"required"`
	Signature string `json:"signature" binding:"required"`
	Referrer  string `json:"referrer"`
}

func (h *Handler) handlePurchase(c *gin.Context) {
	e, ok := h.engineFor(c)
	if !ok {
		return
	}
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !common.IsHexAddress(req.Buyer) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid buyer address"})
		return
	}
	payment, ok := new(big.Int).SetString(req.Payment, 10)
	if !ok || payment.Sign() < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment"})
		return
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature hex"})
		return
	}
	var referrer *common.Address
	if req.Referrer != "" {
		if !common.IsHexAddress(req.Referrer) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid referrer address"})
			return
		}
		r := common.HexToAddress(req.Referrer)
		referrer = &r
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	outcome, err := e.SubmitPurchase(c.Request.Context(), sale.PurchaseRequest{
		Buyer:     common.HexToAddress(req.Buyer),
		Payment:   payment,
		RequestID: requestID,
		Quantity:  req.Quantity,
		IssuedAt:  req.IssuedAt,
		Signature: sig,
		Referrer:  referrer,
	})
	if err != nil {
		writeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"request_id":  outcome.RequestID,
		"quantity":    outcome.Quantity,
		"first_index": outcome.FirstIndex,
		"required":    outcome.Required.String(),
		"refund":      outcome.Refund.String(),
	})
}

type adminOpRequest struct {
	Counter    uint64 `json:"counter"`
	Time       int64  `json:"time"`
	NewOwner   string `json:"new_owner"`
	Collection string `json:"collection"`
}

var adminOps = map[string]engine.AdminOp{
	"last-index":         engine.OpSetLastIndex,
	"available":          engine.OpSetAvailable,
	"start-time":         engine.OpSetStartTime,
	"end-time":           engine.OpSetEndTime,
	"disable":            engine.OpDisable,
	"enable":             engine.OpEnable,
	"sweep":              engine.OpSweepBalance,
	"transfer-ownership": engine.OpReleaseAuthority,
}

func (h *Handler) handleAdmin(c *gin.Context) {
	e, ok := h.engineFor(c)
	if !ok {
		return
	}
	op, ok := adminOps[c.Param("op")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown admin operation"})
		return
	}
	var body adminOpRequest
	if err := c.ShouldBindJSON(&body); err != nil && op != engine.OpDisable && op != engine.OpEnable && op != engine.OpSweepBalance {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := engine.AdminRequest{
		Caller:  caller(c),
		Op:      op,
		Counter: body.Counter,
		Time:    body.Time,
	}
	if op == engine.OpReleaseAuthority {
		if !common.IsHexAddress(body.NewOwner) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid new_owner address"})
			return
		}
		req.NewOwner = common.HexToAddress(body.NewOwner)
		if body.Collection != "" {
			if !common.IsHexAddress(body.Collection) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collection address"})
				return
			}
			col := common.HexToAddress(body.Collection)
			req.Collection = &col
		}
	}

	swept, err := e.SubmitAdmin(c.Request.Context(), req)
	if err != nil {
		writeFailure(c, err)
		return
	}
	resp := gin.H{"ok": true}
	if swept != nil {
		resp["swept"] = swept.String()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleInfo(c *gin.Context) {
	e, ok := h.engineFor(c)
	if !ok {
		return
	}
	info, err := e.Info(c.Request.Context())
	if err != nil {
		writeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) handleShard(c *gin.Context) {
	saleAddr, ok := paramAddress(c, "addr")
	if !ok {
		return
	}
	identity, ok := paramAddress(c, "identity")
	if !ok {
		return
	}
	shard, err := h.shards.Get(c.Request.Context(), saleAddr, identity)
	if err != nil {
		h.log.Error("get ledger shard", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if shard == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ledger shard not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sale":            shard.Sale.Hex(),
		"identity":        shard.Identity.Hex(),
		"available":       shard.Available,
		"total_affiliate": shard.TotalAffiliate.String(),
	})
}

func (h *Handler) engineFor(c *gin.Context) (*engine.Engine, bool) {
	addr, ok := paramAddress(c, "addr")
	if !ok {
		return nil, false
	}
	e, ok := h.reg.Get(addr)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "sale not found"})
		return nil, false
	}
	return e, true
}

func paramAddress(c *gin.Context, name string) (common.Address, bool) {
	raw := c.Param(name)
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func caller(c *gin.Context) common.Address {
	v, _ := c.Get(callerKey)
	addr, _ := v.(common.Address)
	return addr
}

func writeFailure(c *gin.Context, err error) {
	var f *sale.Failure
	if errors.As(err, &f) {
		status := http.StatusBadRequest
		switch f {
		case sale.ErrUnauthorized:
			status = http.StatusUnauthorized
		case sale.ErrForbidden:
			status = http.StatusForbidden
		case sale.ErrStaleAuthorization, sale.ErrOutsideWindow, sale.ErrSaleInactive, sale.ErrInsufficientPayment:
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"code": f.Code, "error": f.Name})
		return
	}
	if errors.Is(err, engine.ErrDecommissioned) {
		c.JSON(http.StatusGone, gin.H{"error": "sale decommissioned"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
