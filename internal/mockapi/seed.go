package mockapi

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"github.com/goliatone/go-resource-cache/catalog"
)

// Record is one stored resource row.
type Record = map[string]any

// Generator builds the i-th seeded record of a resource.
type Generator func(f *gofakeit.Faker, i int, at time.Time) any

var seedEpoch = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func code(prefix string, i int) string {
	return fmt.Sprintf("%s-%03d", prefix, i+1)
}

func status(f *gofakeit.Faker) catalog.Status {
	if f.Number(1, 10) == 1 {
		return catalog.StatusInactive
	}
	return catalog.StatusActive
}

func documentStatus(f *gofakeit.Faker) catalog.DocumentStatus {
	return catalog.DocumentStatus(f.RandomString([]string{
		string(catalog.DocumentDraft),
		string(catalog.DocumentSubmitted),
		string(catalog.DocumentApproved),
		string(catalog.DocumentClosed),
	}))
}

func money(f *gofakeit.Faker, lo, hi float64) decimal.Decimal {
	return decimal.NewFromFloat(f.Price(lo, hi)).Round(2)
}

func lines(f *gofakeit.Faker) catalog.Lines {
	n := f.Number(1, 4)
	out := make(catalog.Lines, n)
	for i := range out {
		out[i] = catalog.Line{
			ProductID: code("PRD", f.Number(0, 34)),
			UnitID:    f.RandomString([]string{"pcs", "kg", "box"}),
			Quantity:  decimal.NewFromInt(int64(f.Number(1, 40))),
			UnitPrice: money(f, 1, 250),
		}
	}
	return out
}

// DefaultGenerators seed the resources of the default registry.
func DefaultGenerators() map[string]Generator {
	return map[string]Generator{
		catalog.Categories: func(f *gofakeit.Faker, i int, at time.Time) any {
			return catalog.Category{ID: code("CAT", i), Code: code("C", i), Name: f.ProductCategory(), Status: status(f), UpdatedAt: at}
		},
		catalog.Departments: func(f *gofakeit.Faker, i int, at time.Time) any {
			return catalog.Department{ID: code("DEP", i), Code: code("D", i), Name: f.JobLevel() + " " + f.BuzzWord(), Manager: f.Name(), Status: status(f), UpdatedAt: at}
		},
		catalog.Products: func(f *gofakeit.Faker, i int, at time.Time) any {
			return catalog.Product{
				ID: code("PRD", i), Code: code("SKU", i), Name: f.ProductName(),
				CategoryID: code("CAT", f.Number(0, 9)), UnitID: "pcs", TaxProfileID: "VAT7",
				PurchasePrice: money(f, 1, 500), MinStock: decimal.NewFromInt(int64(f.Number(0, 50))),
				Status: status(f), UpdatedAt: at,
			}
		},
		catalog.Roles: func(f *gofakeit.Faker, i int, _ time.Time) any {
			return catalog.Role{ID: code("ROL", i), Name: f.JobTitle(), Permissions: []string{"read", f.Word()}}
		},
		catalog.TaxProfiles: func(f *gofakeit.Faker, i int, _ time.Time) any {
			rate := decimal.NewFromInt(int64(f.Number(0, 20)))
			return catalog.TaxProfile{ID: code("TAX", i), Code: "VAT" + rate.String(), Name: "VAT " + rate.String() + "%", Rate: rate, Inclusive: f.Bool(), Status: catalog.StatusActive}
		},
		catalog.PriceLists: func(f *gofakeit.Faker, i int, at time.Time) any {
			return catalog.PriceList{ID: code("PL", i), VendorID: code("VEN", f.Number(0, 9)), ProductID: code("PRD", i), Price: money(f, 1, 500), Currency: "THB", ValidFrom: at}
		},
		catalog.Vendors: func(f *gofakeit.Faker, i int, _ time.Time) any {
			return catalog.Vendor{ID: code("VEN", i), Code: code("V", i), Name: f.Company(), Email: f.Email(), Phone: f.Phone(), Status: status(f)}
		},
		catalog.Locations: func(f *gofakeit.Faker, i int, _ time.Time) any {
			return catalog.Location{ID: code("LOC", i), Code: code("L", i), Name: f.City() + " store", Department: code("DEP", f.Number(0, 9)), Status: status(f)}
		},
		catalog.Units: func(f *gofakeit.Faker, i int, _ time.Time) any {
			return catalog.Unit{ID: code("UNT", i), Code: f.LetterN(3), Name: f.Word(), Base: "pcs", Rate: decimal.NewFromInt(int64(f.Number(1, 48))), Status: catalog.StatusActive}
		},
		catalog.PurchaseRequests: func(f *gofakeit.Faker, i int, at time.Time) any {
			return catalog.PurchaseRequest{ID: code("PR", i), Number: code("PR", i), DepartmentID: code("DEP", f.Number(0, 9)), RequestedBy: f.Name(), NeededBy: at.AddDate(0, 0, f.Number(1, 30)), Status: documentStatus(f), Lines: lines(f)}
		},
		catalog.PurchaseOrders: func(f *gofakeit.Faker, i int, at time.Time) any {
			return catalog.PurchaseOrder{ID: code("PO", i), Number: code("PO", i), VendorID: code("VEN", f.Number(0, 9)), Currency: "THB", OrderedAt: at, Status: documentStatus(f), Lines: lines(f)}
		},
		catalog.GoodsReceivedNotes: func(f *gofakeit.Faker, i int, at time.Time) any {
			return catalog.GoodsReceivedNote{ID: code("GRN", i), Number: code("GRN", i), OrderID: code("PO", f.Number(0, 34)), LocationID: code("LOC", f.Number(0, 9)), ReceivedAt: at, Status: catalog.DocumentApproved, Lines: lines(f)}
		},
		catalog.InventoryAdjustments: func(f *gofakeit.Faker, i int, _ time.Time) any {
			return catalog.InventoryAdjustment{
				ID: code("ADJ", i), LocationID: code("LOC", f.Number(0, 9)),
				Reason: catalog.AdjustmentReason(f.RandomString([]string{"count", "damage", "expiry", "transfer"})),
				Status: documentStatus(f),
				Lines:  []catalog.AdjustmentLine{{ProductID: code("PRD", f.Number(0, 34)), Delta: decimal.NewFromInt(int64(f.Number(-10, 10) | 1))}},
			}
		},
		catalog.BusinessUnits: func(f *gofakeit.Faker, i int, _ time.Time) any {
			return catalog.BusinessUnit{ID: code("BU", i), Code: code("BU", i), Name: f.City(), Currency: "THB", Timezone: "Asia/Bangkok"}
		},
	}
}

// fallback seeds resources without a dedicated generator.
func fallback(f *gofakeit.Faker, i int, at time.Time) any {
	return Record{"id": code("REC", i), "code": code("R", i), "name": f.Word(), "status": string(status(f)), "updatedAt": at.Format(time.RFC3339)}
}

// seedFor derives a stable faker for one scope/resource pair.
func seedFor(seed int64, scope, resource string) *gofakeit.Faker {
	h := fnv.New64a()
	_, _ = h.Write([]byte(scope + "/" + resource))
	return gofakeit.New(uint64(seed) ^ h.Sum64())
}

// toRecord converts a typed value into its wire form.
func toRecord(v any) (Record, error) {
	if r, ok := v.(Record); ok {
		return r, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return r, nil
}
