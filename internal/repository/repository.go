package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrWalletNotFound   = errors.New("钱包不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
	ErrTreasureNotFound = errors.New("商品不存在")
	ErrStockNotEnough   = errors.New("库存不足")
	ErrOrderNotFound    = errors.New("订单不存在")
	ErrGroupNotFound    = errors.New("拼团不存在")
	ErrGroupFull        = errors.New("拼团人数已满")
	ErrMemberNotFound   = errors.New("不是拼团成员")
	ErrDuplicateMember  = errors.New("重复加入拼团")
	ErrDuplicateGroup   = errors.New("重复创建拼团")
)

// pick 调用方传入事务句柄时使用事务，否则使用默认连接
func pick(db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}

// Offset 根据页码计算偏移量，页码从 1 开始
func Offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
