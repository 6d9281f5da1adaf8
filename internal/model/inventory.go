package model

import (
	"fmt"
	"time"
)

// SKU 库存单元标识：商品，或商品的某个规格（VariationID > 0）
type SKU struct {
	ProductID   int64 `json:"product_id" binding:"required,gt=0"`
	VariationID int64 `json:"variation_id,omitempty" binding:"gte=0"`
}

func (s SKU) String() string {
	if s.VariationID > 0 {
		return fmt.Sprintf("P%d-V%d", s.ProductID, s.VariationID)
	}
	return fmt.Sprintf("P%d", s.ProductID)
}

// Less 加锁顺序，所有事务按此顺序获取库存行锁
func (s SKU) Less(other SKU) bool {
	if s.ProductID != other.ProductID {
		return s.ProductID < other.ProductID
	}
	return s.VariationID < other.VariationID
}

// InventoryUnit 库存记录
type InventoryUnit struct {
	SKU               SKU       `json:"sku"`
	AvailableQuantity int       `json:"available_quantity"`
	IsActive          bool      `json:"is_active"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// CatalogSKU 商品目录提供的权威价格和上架状态
type CatalogSKU struct {
	SKU        SKU    `json:"sku"`
	Price      int64  `json:"price"`
	Active     bool   `json:"active"`
	CategoryID *int64 `json:"category_id,omitempty"`
}
