package catalog

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// DocumentStatus tracks a procurement document through approval.
type DocumentStatus string

const (
	DocumentDraft     DocumentStatus = "draft"
	DocumentSubmitted DocumentStatus = "submitted"
	DocumentApproved  DocumentStatus = "approved"
	DocumentRejected  DocumentStatus = "rejected"
	DocumentClosed    DocumentStatus = "closed"
)

var documentStatusRule = validation.In(
	DocumentDraft, DocumentSubmitted, DocumentApproved, DocumentRejected, DocumentClosed,
)

// Line is one product row of a procurement document.
type Line struct {
	ProductID string          `json:"productId"`
	UnitID    string          `json:"unitId"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

func (l Line) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.ProductID, validation.Required),
		validation.Field(&l.UnitID, validation.Required),
		validation.Field(&l.Quantity, validation.By(positive)),
		validation.Field(&l.UnitPrice, validation.By(nonNegative)),
	)
}

// Amount is quantity times unit price.
func (l Line) Amount() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// Lines is a document body.
type Lines []Line

// Total sums the line amounts.
func (ls Lines) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range ls {
		total = total.Add(l.Amount())
	}
	return total
}

// PurchaseRequest asks for goods on behalf of a department.
type PurchaseRequest struct {
	ID           string         `json:"id,omitempty"`
	Number       string         `json:"number,omitempty"`
	DepartmentID string         `json:"departmentId"`
	RequestedBy  string         `json:"requestedBy,omitempty"`
	NeededBy     time.Time      `json:"neededBy"`
	Status       DocumentStatus `json:"status,omitempty"`
	Lines        Lines          `json:"lines"`
}

func (p PurchaseRequest) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.DepartmentID, validation.Required),
		validation.Field(&p.NeededBy, validation.Required),
		validation.Field(&p.Status, documentStatusRule),
		validation.Field(&p.Lines, validation.Required),
	)
}

// PurchaseOrder commits to buy from a vendor.
type PurchaseOrder struct {
	ID         string         `json:"id,omitempty"`
	Number     string         `json:"number,omitempty"`
	VendorID   string         `json:"vendorId"`
	RequestIDs []string       `json:"requestIds,omitempty"`
	Currency   string         `json:"currency"`
	OrderedAt  time.Time      `json:"orderedAt"`
	Status     DocumentStatus `json:"status,omitempty"`
	Lines      Lines          `json:"lines"`
}

func (p PurchaseOrder) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.VendorID, validation.Required),
		validation.Field(&p.Currency, validation.Required, validation.Length(3, 3)),
		validation.Field(&p.Status, documentStatusRule),
		validation.Field(&p.Lines, validation.Required),
	)
}

// Total is the order value.
func (p PurchaseOrder) Total() decimal.Decimal {
	return p.Lines.Total()
}

// GoodsReceivedNote records a delivery against an order.
type GoodsReceivedNote struct {
	ID         string         `json:"id,omitempty"`
	Number     string         `json:"number,omitempty"`
	OrderID    string         `json:"orderId"`
	LocationID string         `json:"locationId"`
	ReceivedAt time.Time      `json:"receivedAt"`
	Status     DocumentStatus `json:"status,omitempty"`
	Lines      Lines          `json:"lines"`
}

func (g GoodsReceivedNote) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.OrderID, validation.Required),
		validation.Field(&g.LocationID, validation.Required),
		validation.Field(&g.ReceivedAt, validation.Required),
		validation.Field(&g.Status, documentStatusRule),
		validation.Field(&g.Lines, validation.Required),
	)
}

// Outstanding returns, per product, how much of the order is still to be
// received after this note. Products fully received are omitted.
func (g GoodsReceivedNote) Outstanding(order PurchaseOrder) map[string]decimal.Decimal {
	left := make(map[string]decimal.Decimal, len(order.Lines))
	for _, l := range order.Lines {
		left[l.ProductID] = left[l.ProductID].Add(l.Quantity)
	}
	for _, l := range g.Lines {
		if q, ok := left[l.ProductID]; ok {
			left[l.ProductID] = q.Sub(l.Quantity)
		}
	}
	for id, q := range left {
		if !q.IsPositive() {
			delete(left, id)
		}
	}
	return left
}

// AdjustmentReason explains a stock correction.
type AdjustmentReason string

const (
	ReasonCount    AdjustmentReason = "count"
	ReasonDamage   AdjustmentReason = "damage"
	ReasonExpiry   AdjustmentReason = "expiry"
	ReasonTransfer AdjustmentReason = "transfer"
)

// InventoryAdjustment corrects stock at a location. Quantities may be negative.
type InventoryAdjustment struct {
	ID         string           `json:"id,omitempty"`
	LocationID string           `json:"locationId"`
	Reason     AdjustmentReason `json:"reason"`
	Note       string           `json:"note,omitempty"`
	Status     DocumentStatus   `json:"status,omitempty"`
	Lines      []AdjustmentLine `json:"lines"`
}

// AdjustmentLine is a signed quantity change.
type AdjustmentLine struct {
	ProductID string          `json:"productId"`
	Delta     decimal.Decimal `json:"delta"`
}

func (a InventoryAdjustment) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.LocationID, validation.Required),
		validation.Field(&a.Reason, validation.Required, validation.In(ReasonCount, ReasonDamage, ReasonExpiry, ReasonTransfer)),
		validation.Field(&a.Status, documentStatusRule),
		validation.Field(&a.Lines, validation.Required, validation.Each(validation.By(func(value any) error {
			l, _ := value.(AdjustmentLine)
			if l.ProductID == "" {
				return validation.NewError("validation_product", "productId is required")
			}
			if l.Delta.IsZero() {
				return validation.NewError("validation_delta", "delta must not be zero")
			}
			return nil
		}))),
	)
}

// DashboardSummary is the single-document overview served under the
// non-config namespace.
type DashboardSummary struct {
	OpenRequests      int             `json:"openRequests"`
	PendingApprovals  int             `json:"pendingApprovals"`
	OpenOrders        int             `json:"openOrders"`
	OrderValue        decimal.Decimal `json:"orderValue"`
	ReceivedToday     int             `json:"receivedToday"`
	PartiallyReceived int             `json:"partiallyReceived"`
	Adjustments       int             `json:"adjustments"`
	ActivePriceLists  int             `json:"activePriceLists"`
	GeneratedAt       time.Time       `json:"generatedAt"`
}
