package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Variant is a sellable unit with its own stock counter.
type Variant struct {
	ID               string    `gorm:"primaryKey;type:text" json:"id"`
	SKU              string    `gorm:"type:text" json:"sku"`
	GatewayPriceID   string    `gorm:"type:text;index" json:"gateway_price_id"`
	GatewayProductID string    `gorm:"type:text;index" json:"gateway_product_id"`
	StockQuantity    int64     `gorm:"not null;default:0" json:"stock_quantity"`
	TrackInventory   bool      `gorm:"not null;default:true" json:"track_inventory"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Variant) TableName() string { return "product_variants" }

// Adjustment is the ledger row proving a line item's decrement was applied
// once. Two line items of one session may share a variant.
type Adjustment struct {
	ID            snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	VariantID     string       `gorm:"type:text;not null;index" json:"variant_id"`
	QuantityDelta int64        `gorm:"not null" json:"quantity_delta"`
	OrderID       string       `gorm:"type:text" json:"order_id"`
	SessionID     string       `gorm:"type:text;not null;uniqueIndex:uq_inventory_adjustments_session_line_item,priority:1" json:"session_id"`
	LineItemID    string       `gorm:"type:text;not null;uniqueIndex:uq_inventory_adjustments_session_line_item,priority:2" json:"line_item_id"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
}

func (Adjustment) TableName() string { return "inventory_adjustments" }

// OrderRef identifies the order a decrement belongs to.
type OrderRef struct {
	OrderID   string
	SessionID string
}

type DecrementResult struct {
	VariantID string
	Quantity  int64
	// Applied is false when this line item was already decremented.
	Applied bool
}
