package service

import (
	"errors"
	"fmt"
)

// Kind 业务错误类型，对外稳定，调用方据此决定是否重试或直接展示
type Kind string

const (
	KindValidation          Kind = "VALIDATION"
	KindNotFound            Kind = "NOT_FOUND"
	KindUnavailable         Kind = "UNAVAILABLE"
	KindInsufficientStock   Kind = "INSUFFICIENT_STOCK"
	KindQuotaExceeded       Kind = "QUOTA_EXCEEDED"
	KindGroupNotFound       Kind = "GROUP_NOT_FOUND"
	KindGroupInactive       Kind = "GROUP_INACTIVE"
	KindGroupFull           Kind = "GROUP_FULL"
	KindInsufficientBalance Kind = "INSUFFICIENT_BALANCE"
	KindConflict            Kind = "CONFLICT"
	KindNotAMember          Kind = "NOT_A_MEMBER"
	KindInvalidAmount       Kind = "INVALID_AMOUNT"
)

// BizError 业务错误
type BizError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *BizError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *BizError) Unwrap() error {
	return e.Err
}

func newBizError(kind Kind, format string, args ...interface{}) *BizError {
	return &BizError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapBizError(kind Kind, err error, message string) *BizError {
	return &BizError{Kind: kind, Message: message, Err: err}
}

// KindOf 取出错误链上的业务错误类型，非业务错误返回空
func KindOf(err error) Kind {
	var be *BizError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsKind 判断错误是否属于指定业务类型
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
