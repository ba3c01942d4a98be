package handler

import (
	"errors"
	"strconv"

	"treasurebuy/internal/config"
	"treasurebuy/internal/service"
	"treasurebuy/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
// 鉴权由网关完成，user_id 由边界层传入
type Handler struct {
	walletService   *service.WalletService
	groupService    *service.GroupService
	checkoutService *service.CheckoutService
	orderService    *service.OrderService
	logger          *zap.Logger
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *Handler {
	wallet := service.NewWalletService(db, cfg, logger)
	groups := service.NewGroupService(db, cfg, logger)
	rates := service.NewExchangeRateProvider(db, rdb, cfg, logger)

	return &Handler{
		walletService:   wallet,
		groupService:    groups,
		checkoutService: service.NewCheckoutService(db, cfg, logger, wallet, groups, rates),
		orderService:    service.NewOrderService(db, cfg),
		logger:          logger,
	}
}

var kindCodes = map[service.Kind]int{
	service.KindValidation:          response.CodeParamError,
	service.KindNotFound:            response.CodeNotFound,
	service.KindUnavailable:         response.CodeUnavailable,
	service.KindInsufficientStock:   response.CodeInsufficientStock,
	service.KindQuotaExceeded:       response.CodeQuotaExceeded,
	service.KindInsufficientBalance: response.CodeInsufficientBalance,
	service.KindInvalidAmount:       response.CodeInvalidAmount,
	service.KindGroupNotFound:       response.CodeGroupNotFound,
	service.KindGroupInactive:       response.CodeGroupInactive,
	service.KindGroupFull:           response.CodeGroupFull,
	service.KindNotAMember:          response.CodeNotAMember,
	service.KindConflict:            response.CodeConflict,
}

// fail 业务错误按类型返回对应错误码，其余错误记录日志后统一返回服务器错误
func (h *Handler) fail(c *gin.Context, err error) {
	var be *service.BizError
	if errors.As(err, &be) {
		code, ok := kindCodes[be.Kind]
		if !ok {
			code = response.CodeServerError
		}
		response.BusinessError(c, code, string(be.Kind), be.Message)
		return
	}

	h.logger.Error("请求处理失败",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	response.ServerError(c, "服务器内部错误")
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))
	return page, pageSize
}

// ============================================================
// 钱包
// ============================================================

// GetBalance 查询钱包余额
// GET /api/v1/wallet/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 不能为空")
		return
	}

	balance, err := h.walletService.Balance(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, balance)
}

// LedgerRequest 入账/出账请求
type LedgerRequest struct {
	UserID          string          `json:"user_id" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
	BalanceType     string          `json:"balance_type"`
	TransactionType string          `json:"transaction_type"`
	RelatedID       string          `json:"related_id"`
	RelatedType     string          `json:"related_type"`
	Description     string          `json:"description"`
}

func (r *LedgerRequest) toService() *service.LedgerRequest {
	return &service.LedgerRequest{
		UserID:          r.UserID,
		Amount:          r.Amount,
		BalanceType:     r.BalanceType,
		TransactionType: r.TransactionType,
		RelatedID:       r.RelatedID,
		RelatedType:     r.RelatedType,
		Description:     r.Description,
	}
}

// Credit 入账
// POST /api/v1/wallet/credit
func (h *Handler) Credit(c *gin.Context) {
	var req LedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.walletService.Credit(c.Request.Context(), req.toService())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// Debit 出账
// POST /api/v1/wallet/debit
func (h *Handler) Debit(c *gin.Context) {
	var req LedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.walletService.Debit(c.Request.Context(), req.toService())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// ListTransactions 钱包流水
// GET /api/v1/wallet/transactions?user_id=xxx&page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 不能为空")
		return
	}

	page, pageSize := pageParams(c)
	list, total, p, err := h.walletService.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Paged(c, list, total, p.Page, p.PageSize)
}

// ============================================================
// 结算
// ============================================================

// CheckoutRequest 下单请求
type CheckoutRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	TreasureID    string `json:"treasure_id" binding:"required"`
	Entries       int    `json:"entries" binding:"required,gte=1"`
	GroupID       string `json:"group_id"`
	CouponID      string `json:"coupon_id"`
	PaymentMethod string `json:"payment_method" binding:"required,oneof=CASH COIN"`
	AddressID     string `json:"address_id"`
	MaxMembers    int    `json:"max_members" binding:"gte=0"`
}

// Checkout 下单并支付
// POST /api/v1/checkout
func (h *Handler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.checkoutService.Checkout(c.Request.Context(), req.UserID, &service.CheckoutRequest{
		TreasureID:    req.TreasureID,
		Entries:       req.Entries,
		GroupID:       req.GroupID,
		CouponID:      req.CouponID,
		PaymentMethod: req.PaymentMethod,
		AddressID:     req.AddressID,
		MaxMembers:    req.MaxMembers,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 订单
// ============================================================

// ListOrders 订单列表
// GET /api/v1/order/list?user_id=xxx&status=PAID&treasure_id=xxx&page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 不能为空")
		return
	}

	page, pageSize := pageParams(c)
	orders, total, p, err := h.orderService.ListOrders(c.Request.Context(), userID, &service.ListOrdersRequest{
		Status:     c.Query("status"),
		TreasureID: c.Query("treasure_id"),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Paged(c, orders, total, p.Page, p.PageSize)
}

// GetOrderDetail 订单详情
// GET /api/v1/order/detail?user_id=xxx&order_id=xxx
func (h *Handler) GetOrderDetail(c *gin.Context) {
	userID := c.Query("user_id")
	orderID := c.Query("order_id")
	if userID == "" || orderID == "" {
		response.ParamError(c, "user_id 与 order_id 不能为空")
		return
	}

	detail, err := h.orderService.GetOrderDetail(c.Request.Context(), userID, orderID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, detail)
}

// ============================================================
// 拼团
// ============================================================

// GroupRequest 开团/参团请求
type GroupRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	TreasureID string `json:"treasure_id" binding:"required"`
	GroupID    string `json:"group_id"`
	OrderID    string `json:"order_id"`
	MaxMembers int    `json:"max_members" binding:"gte=0"`
}

func (r *GroupRequest) toService() *service.JoinRequest {
	return &service.JoinRequest{
		UserID:     r.UserID,
		TreasureID: r.TreasureID,
		GroupID:    r.GroupID,
		OrderID:    r.OrderID,
		MaxMembers: r.MaxMembers,
	}
}

// CreateGroup 开团
// POST /api/v1/group/create
func (h *Handler) CreateGroup(c *gin.Context) {
	var req GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.groupService.Create(c.Request.Context(), req.toService())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// JoinGroup 参团
// POST /api/v1/group/join
func (h *Handler) JoinGroup(c *gin.Context) {
	var req GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.groupService.Join(c.Request.Context(), req.toService())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// LeaveGroup 退团
// POST /api/v1/group/leave
func (h *Handler) LeaveGroup(c *gin.Context) {
	var req struct {
		UserID  string `json:"user_id" binding:"required"`
		GroupID string `json:"group_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.groupService.Leave(c.Request.Context(), req.GroupID, req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// ListGroups 商品下的有效拼团
// GET /api/v1/group/list?treasure_id=xxx&page=1&page_size=10
func (h *Handler) ListGroups(c *gin.Context) {
	treasureID := c.Query("treasure_id")
	if treasureID == "" {
		response.ParamError(c, "treasure_id 不能为空")
		return
	}

	page, pageSize := pageParams(c)
	groups, total, p, err := h.groupService.ListActive(c.Request.Context(), treasureID, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Paged(c, groups, total, p.Page, p.PageSize)
}

// ListGroupMembers 拼团成员
// GET /api/v1/group/members?group_id=xxx&page=1&page_size=10
func (h *Handler) ListGroupMembers(c *gin.Context) {
	groupID := c.Query("group_id")
	if groupID == "" {
		response.ParamError(c, "group_id 不能为空")
		return
	}

	page, pageSize := pageParams(c)
	members, total, p, err := h.groupService.Members(c.Request.Context(), groupID, page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Paged(c, members, total, p.Page, p.PageSize)
}
