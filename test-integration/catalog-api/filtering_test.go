package integration

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/boreal-financial/catalog-sync/test-integration/catalog-api/helpers"
)

var _ = Describe("Catalog Filtering", Label("filtering"), func() {
	var (
		tempDir      string
		staffAPI     *helpers.MockStaffAPI
		serverHelper *helpers.ServerTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("catalog-filter-test-")
		staffAPI = helpers.NewMockStaffAPI(helpers.CreateTestLenders())
	})

	AfterEach(func() {
		if serverHelper != nil {
			Expect(serverHelper.StopServer()).To(Succeed())
			serverHelper = nil
		}
		staffAPI.Close()
		cleanupTempDir(tempDir)
	})

	DescribeTable("should cache only the products that pass the filter",
		func(filterYAML string, expectedIDs []string) {
			configFile := helpers.WriteConfigYAML(tempDir, staffAPI.URL, filterYAML)
			serverHelper = helpers.NewServerTestHelper(ctx, configFile)
			Expect(serverHelper.StartServer()).To(Succeed())
			serverHelper.WaitForServerReady(10 * time.Second)

			Eventually(func(g Gomega) {
				var list productList
				code, err := serverHelper.GetJSON("/api/v1/products", &list)
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(code).To(Equal(http.StatusOK))
				g.Expect(list.Source).To(Equal("staff_api"))

				ids := []string{}
				for _, p := range list.Products {
					ids = append(ids, p.ID)
				}
				g.Expect(ids).To(ConsistOf(expectedIDs))
			}, 10*time.Second, 100*time.Millisecond).Should(Succeed())
		},
		Entry("lender exclude glob",
			"  filter:\n    lenders:\n      exclude: [\"Northern*\"]\n",
			[]string{"acme-term", "acme-loc"}),
		Entry("lender include glob",
			"  filter:\n    lenders:\n      include: [\"*Finance\"]\n",
			[]string{"northern-equipment", "northern-factoring"}),
		Entry("category include",
			"  filter:\n    categories:\n      include: [\"term_loan\", \"invoice_factoring\"]\n",
			[]string{"acme-term", "northern-factoring"}),
		Entry("lender include with category exclude",
			"  filter:\n    lenders:\n      include: [\"Acme*\"]\n    categories:\n      exclude: [\"line_of_credit\"]\n",
			[]string{"acme-term"}),
	)
})
