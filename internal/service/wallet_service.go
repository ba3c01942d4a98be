package service

import (
	"context"
	"errors"
	"fmt"

	"treasurebuy/internal/config"
	"treasurebuy/internal/metrics"
	"treasurebuy/internal/model"
	"treasurebuy/internal/repository"
	"treasurebuy/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WalletService 钱包账本
//
// 每次余额变动与对应流水在同一事务内写入；
// 不带 Tx 后缀的方法自己开启事务，带 Tx 后缀的方法只使用调用方传入的事务
type WalletService struct {
	db              *gorm.DB
	cfg             *config.Config
	logger          *zap.Logger
	walletRepo      *repository.WalletRepository
	transactionRepo *repository.TransactionRepository
}

func NewWalletService(db *gorm.DB, cfg *config.Config, logger *zap.Logger) *WalletService {
	return &WalletService{
		db:              db,
		cfg:             cfg,
		logger:          logger,
		walletRepo:      repository.NewWalletRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

// LedgerRequest 入账/出账请求
type LedgerRequest struct {
	UserID          string
	Amount          decimal.Decimal
	BalanceType     string // 默认 CASH
	TransactionType string // 入账默认 RECHARGE，出账默认 CONSUMPTION
	RelatedID       string
	RelatedType     string
	Description     string
}

// LedgerResult 变动后的余额与流水号
type LedgerResult struct {
	Balance       decimal.Decimal `json:"balance"`
	TransactionNo string          `json:"transaction_no"`
}

// BalanceView 钱包余额
type BalanceView struct {
	UserID        string          `json:"user_id"`
	CashBalance   decimal.Decimal `json:"cash_balance"`
	CoinBalance   decimal.Decimal `json:"coin_balance"`
	FrozenBalance decimal.Decimal `json:"frozen_balance"`
	TotalRecharge decimal.Decimal `json:"total_recharge"`
	TotalWithdraw decimal.Decimal `json:"total_withdraw"`
}

func (s *WalletService) Balance(ctx context.Context, userID string) (*BalanceView, error) {
	wallet, err := s.walletRepo.Ensure(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("获取钱包失败: %w", err)
	}
	return &BalanceView{
		UserID:        wallet.UserID,
		CashBalance:   wallet.CashBalance,
		CoinBalance:   wallet.CoinBalance,
		FrozenBalance: wallet.FrozenBalance,
		TotalRecharge: wallet.TotalRecharge,
		TotalWithdraw: wallet.TotalWithdraw,
	}, nil
}

// EnsureWallet 确保钱包存在，可在调用方事务内使用
func (s *WalletService) EnsureWallet(ctx context.Context, tx *gorm.DB, userID string) (*model.Wallet, error) {
	wallet, err := s.walletRepo.Ensure(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取钱包失败: %w", err)
	}
	return wallet, nil
}

func (s *WalletService) Credit(ctx context.Context, req *LedgerRequest) (*LedgerResult, error) {
	var result *LedgerResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.CreditTx(ctx, tx, req)
		return err
	})
	metrics.RecordWalletOp("credit", metrics.Result(err, string(KindOf(err))))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *WalletService) Debit(ctx context.Context, req *LedgerRequest) (*LedgerResult, error) {
	var result *LedgerResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.DebitTx(ctx, tx, req)
		return err
	})
	metrics.RecordWalletOp("debit", metrics.Result(err, string(KindOf(err))))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreditTx 入账
func (s *WalletService) CreditTx(ctx context.Context, tx *gorm.DB, req *LedgerRequest) (*LedgerResult, error) {
	if err := normalizeLedgerRequest(req, model.TransactionTypeRecharge); err != nil {
		return nil, err
	}

	wallet, err := s.EnsureWallet(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

	trackRecharge := req.TransactionType == model.TransactionTypeRecharge && req.BalanceType == model.BalanceTypeCash
	if err := s.walletRepo.Increase(ctx, tx, req.UserID, req.BalanceType, req.Amount, trackRecharge); err != nil {
		return nil, fmt.Errorf("入账失败: %w", err)
	}

	return s.record(ctx, tx, wallet.ID, req, req.Amount)
}

// DebitTx 出账
//
// 【关键点】扣减由 repository 的条件更新完成，余额不足时不写任何数据
func (s *WalletService) DebitTx(ctx context.Context, tx *gorm.DB, req *LedgerRequest) (*LedgerResult, error) {
	if err := normalizeLedgerRequest(req, model.TransactionTypeConsumption); err != nil {
		return nil, err
	}

	wallet, err := s.EnsureWallet(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

	trackWithdraw := req.TransactionType == model.TransactionTypeWithdrawal && req.BalanceType == model.BalanceTypeCash
	if err := s.walletRepo.Deduct(ctx, tx, req.UserID, req.BalanceType, req.Amount, trackWithdraw); err != nil {
		if errors.Is(err, repository.ErrBalanceNotEnough) {
			return nil, wrapBizError(KindInsufficientBalance, err, balanceLabel(req.BalanceType)+"余额不足")
		}
		return nil, fmt.Errorf("扣款失败: %w", err)
	}

	return s.record(ctx, tx, wallet.ID, req, req.Amount.Neg())
}

// record 写流水
// 余额已在本事务内被条件更新锁定，此时读取到的就是变动后的余额
func (s *WalletService) record(ctx context.Context, tx *gorm.DB, walletID string, req *LedgerRequest, signed decimal.Decimal) (*LedgerResult, error) {
	after, err := s.walletRepo.GetByUserID(ctx, tx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("查询钱包失败: %w", err)
	}
	balanceAfter := after.BalanceOf(req.BalanceType)

	trans := &model.WalletTransaction{
		TransactionNo:   idgen.GenerateTransactionNo(),
		UserID:          req.UserID,
		WalletID:        walletID,
		TransactionType: req.TransactionType,
		BalanceType:     req.BalanceType,
		Amount:          signed,
		BalanceBefore:   balanceAfter.Sub(signed),
		BalanceAfter:    balanceAfter,
		RelatedID:       req.RelatedID,
		RelatedType:     req.RelatedType,
		Description:     req.Description,
		Status:          model.TransactionStatusSuccess,
	}
	if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}

	s.logger.Info("钱包变动",
		zap.String("user_id", req.UserID),
		zap.String("transaction_no", trans.TransactionNo),
		zap.String("transaction_type", trans.TransactionType),
		zap.String("balance_type", trans.BalanceType),
		zap.String("amount", signed.String()),
		zap.String("balance", balanceAfter.String()),
	)

	return &LedgerResult{Balance: balanceAfter, TransactionNo: trans.TransactionNo}, nil
}

// ListTransactions 分页查询流水，最新的在前
func (s *WalletService) ListTransactions(ctx context.Context, userID string, page, pageSize int) ([]*model.WalletTransaction, int64, Page, error) {
	p := normalizePage(s.cfg, page, pageSize)
	list, total, err := s.transactionRepo.ListByUserID(ctx, userID, p.Page, p.PageSize)
	return list, total, p, err
}

// BackfillRelated 回填流水关联对象
func (s *WalletService) BackfillRelated(ctx context.Context, tx *gorm.DB, transactionNos []string, relatedID, relatedType string) error {
	if err := s.transactionRepo.BackfillRelated(ctx, tx, transactionNos, relatedID, relatedType); err != nil {
		return fmt.Errorf("回填流水失败: %w", err)
	}
	return nil
}

func normalizeLedgerRequest(req *LedgerRequest, defaultType string) error {
	if req.UserID == "" {
		return newBizError(KindValidation, "user_id 不能为空")
	}
	if !req.Amount.IsPositive() {
		return newBizError(KindInvalidAmount, "金额必须大于0")
	}
	// 余额与流水列都是 decimal(20,2)，更细的精度会被数据库舍入
	if !req.Amount.Equal(req.Amount.Truncate(model.MoneyScale)) {
		return newBizError(KindInvalidAmount, "金额最多保留两位小数")
	}
	if req.BalanceType == "" {
		req.BalanceType = model.BalanceTypeCash
	}
	if !model.IsValidBalanceType(req.BalanceType) {
		return newBizError(KindValidation, "余额类型不合法: %s", req.BalanceType)
	}
	if req.TransactionType == "" {
		req.TransactionType = defaultType
	}
	if !model.IsValidTransactionType(req.TransactionType) {
		return newBizError(KindValidation, "交易类型不合法: %s", req.TransactionType)
	}
	return nil
}

func balanceLabel(balanceType string) string {
	if balanceType == model.BalanceTypeCoin {
		return "金币"
	}
	return "现金"
}
