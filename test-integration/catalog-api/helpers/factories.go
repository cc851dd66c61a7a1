package helpers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/onsi/gomega"
)

// LenderRecord is one raw product as the staff API returns it
type LenderRecord struct {
	ID        string   `json:"id,omitempty"`
	Lender    string   `json:"lender"`
	Product   string   `json:"product"`
	Category  string   `json:"productCategory"`
	MinAmount any      `json:"minAmountUsd"`
	MaxAmount any      `json:"maxAmountUsd"`
	Geography []string `json:"geography"`
}

// CreateTestLenders returns a small catalog spanning both countries
func CreateTestLenders() []LenderRecord {
	return []LenderRecord{
		{ID: "acme-term", Lender: "Acme Capital", Product: "Growth Term Loan", Category: "term loan", MinAmount: 50000, MaxAmount: 750000, Geography: []string{"US"}},
		{ID: "acme-loc", Lender: "Acme Capital", Product: "Revolver", Category: "Line of Credit", MinAmount: "5000", MaxAmount: "100000", Geography: []string{"US", "CA"}},
		{ID: "northern-equipment", Lender: "Northern Finance", Product: "Equipment Lease", Category: "equipment_finance", MinAmount: 10000, MaxAmount: 400000, Geography: []string{"Canada"}},
		{ID: "northern-factoring", Lender: "Northern Finance", Product: "Factoring", Category: "factoring", MinAmount: 5000, MaxAmount: 90000, Geography: []string{"CA"}},
	}
}

// BuildLendersJSON wraps records in the {"success":true,"products":[...]} envelope
func BuildLendersJSON(records []LenderRecord) string {
	data, err := json.Marshal(map[string]any{"success": true, "products": records})
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return string(data)
}

// WriteConfigYAML writes a service configuration pointing at endpoint and returns its path.
// catalogExtra is indented into the catalog section; extra is appended as top-level sections.
func WriteConfigYAML(dir, endpoint, catalogExtra string, extra ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "catalog:\n  endpoint: %s\n  timeout: 5s\n", endpoint)
	b.WriteString(catalogExtra)
	fmt.Fprintf(&b, "storage:\n  type: sqlite\n  sqlite:\n    path: %s\n  lockPath: %s\n",
		filepath.Join(dir, "catalog.db"), filepath.Join(dir, "sync.lock"))
	fmt.Fprintf(&b, "notifications:\n  ttl: 1m\n")
	for _, e := range extra {
		b.WriteString(e)
	}

	path := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(path, []byte(b.String()), 0600)).To(gomega.Succeed())
	return path
}
