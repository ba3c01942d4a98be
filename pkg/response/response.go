package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess     = 0
	CodeParamError  = 400
	CodeNotFound    = 404
	CodeServerError = 500
)

// 业务错误码，与 service.Kind 一一对应
const (
	CodeUnavailable         = 1001
	CodeInsufficientStock   = 1002
	CodeQuotaExceeded       = 1003
	CodeInsufficientBalance = 1004
	CodeInvalidAmount       = 1005
	CodeGroupNotFound       = 1101
	CodeGroupInactive       = 1102
	CodeGroupFull           = 1103
	CodeNotAMember          = 1104
	CodeConflict            = 1105
)

type Response struct {
	Code    int         `json:"code"`
	Kind    string      `json:"kind,omitempty"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PageData 分页结果
type PageData struct {
	List     interface{} `json:"list"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Paged(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	Success(c, PageData{List: list, Total: total, Page: page, PageSize: pageSize})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

// BusinessError 业务错误，kind 为稳定的机器可读类型
func BusinessError(c *gin.Context, code int, kind, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Kind:    kind,
		Message: message,
	})
}
