package service

import "treasurebuy/internal/config"

// Page 分页参数
type Page struct {
	Page     int
	PageSize int
}

func normalizePage(cfg *config.Config, page, pageSize int) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = cfg.Business.DefaultPageSize
	}
	if cfg.Business.MaxPageSize > 0 && pageSize > cfg.Business.MaxPageSize {
		pageSize = cfg.Business.MaxPageSize
	}
	return Page{Page: page, PageSize: pageSize}
}
