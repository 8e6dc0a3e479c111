// Package catalog defines the records served by the procurement backend.
//
// Config resources (categories, departments, units, products...) and scoped
// documents (purchase requests, orders, goods received notes, adjustments)
// validate themselves, so a resourcecache mutation rejects a bad payload
// before it reaches the network. Money, quantities and rates use
// shopspring/decimal.
package catalog

// Registry names of the resources in this package.
const (
	Categories           = "categories"
	Departments          = "departments"
	Products             = "products"
	Roles                = "roles"
	TaxProfiles          = "tax-profiles"
	PriceLists           = "price-lists"
	Vendors              = "vendors"
	Locations            = "locations"
	Units                = "units"
	PurchaseRequests     = "purchase-requests"
	PurchaseOrders       = "purchase-orders"
	GoodsReceivedNotes   = "goods-received-notes"
	InventoryAdjustments = "inventory-adjustments"
	BusinessUnits        = "business-units"
	Dashboard            = "dashboard"
)
