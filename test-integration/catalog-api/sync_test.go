package integration

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/boreal-financial/catalog-sync/test-integration/catalog-api/helpers"
)

type productList struct {
	Source   string `json:"source"`
	Label    string `json:"label"`
	Count    int    `json:"count"`
	Products []struct {
		ID         string  `json:"id"`
		LenderName string  `json:"lenderName"`
		Category   string  `json:"category"`
		Country    string  `json:"country"`
		MinAmount  float64 `json:"minAmount"`
	} `json:"products"`
}

type syncResult struct {
	Success      bool   `json:"success"`
	ProductCount int    `json:"productCount"`
	Message      string `json:"message"`
	RunID        string `json:"runId"`
}

type diagnosticsReport struct {
	Source       string `json:"source"`
	Status       string `json:"status"`
	SyncStatus   string `json:"syncStatus"`
	CachedCount  int    `json:"cachedCount"`
	LastError    string `json:"lastError"`
	ProductCount int    `json:"productCount"`
}

var _ = Describe("Staff API Sync", Label("api"), func() {
	var (
		tempDir      string
		staffAPI     *helpers.MockStaffAPI
		serverHelper *helpers.ServerTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("catalog-sync-test-")
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

	startServer := func(catalogExtra string) {
		configFile := helpers.WriteConfigYAML(tempDir, staffAPI.URL, catalogExtra)
		serverHelper = helpers.NewServerTestHelper(ctx, configFile)
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	}

	waitForLiveProducts := func(count int) {
		Eventually(func(g Gomega) {
			var list productList
			code, err := serverHelper.GetJSON("/api/v1/products", &list)
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(code).To(Equal(http.StatusOK))
			g.Expect(list.Source).To(Equal("staff_api"))
			g.Expect(list.Count).To(Equal(count))
		}, 10*time.Second, 100*time.Millisecond).Should(Succeed())
	}

	Context("startup sync", func() {
		It("should serve normalized products from the staff API", func() {
			startServer("")
			waitForLiveProducts(4)

			var list productList
			_, err := serverHelper.GetJSON("/api/v1/products?country=CA", &list)
			Expect(err).NotTo(HaveOccurred())
			Expect(list.Label).To(Equal("Using live data from Staff API"))

			ids := []string{}
			for _, p := range list.Products {
				ids = append(ids, p.ID)
			}
			Expect(ids).To(ConsistOf("acme-loc", "northern-equipment", "northern-factoring"))

			_, err = serverHelper.GetJSON("/api/v1/products?category=line%20of%20credit", &list)
			Expect(err).NotTo(HaveOccurred())
			Expect(list.Count).To(Equal(1))
			Expect(list.Products[0].MinAmount).To(Equal(5000.0))
		})

		It("should serve fallback data when the first sync fails", func() {
			staffAPI.RespondWith(http.StatusInternalServerError, `{"error":"down"}`)
			startServer("")

			Eventually(func(g Gomega) {
				var report diagnosticsReport
				_, err := serverHelper.GetJSON("/api/v1/diagnostics", &report)
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(report.SyncStatus).To(Equal("error"))
			}, 10*time.Second, 100*time.Millisecond).Should(Succeed())

			var list productList
			code, err := serverHelper.GetJSON("/api/v1/products", &list)
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal(http.StatusOK))
			Expect(list.Source).To(Equal("fallback_data"))
			Expect(list.Label).To(Equal("Using fallback sample data"))
			Expect(list.Count).To(Equal(4))
		})
	})

	Context("manual sync", func() {
		It("should replace the cache with the new catalog", func() {
			startServer("")
			waitForLiveProducts(4)

			staffAPI.RespondWithRecords(helpers.CreateTestLenders()[:2])

			var result syncResult
			code, err := serverHelper.TriggerSync(&result)
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal(http.StatusOK))
			Expect(result.Success).To(BeTrue())
			Expect(result.ProductCount).To(Equal(2))
			Expect(result.Message).To(Equal("Successfully synced 2 products from staff API"))
			Expect(result.RunID).NotTo(BeEmpty())

			waitForLiveProducts(2)
		})

		It("should keep the cache when the staff API fails", func() {
			startServer("")
			waitForLiveProducts(4)

			staffAPI.RespondWith(http.StatusBadGateway, ``)

			var result syncResult
			code, err := serverHelper.TriggerSync(&result)
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal(http.StatusBadGateway))
			Expect(result.Success).To(BeFalse())
			Expect(result.Message).To(Equal("Sync failed: Staff API error: 502 Bad Gateway"))

			var list productList
			_, err = serverHelper.GetJSON("/api/v1/products", &list)
			Expect(err).NotTo(HaveOccurred())
			Expect(list.Count).To(Equal(4))
			Expect(list.Source).To(Equal("cached_data"))

			var report diagnosticsReport
			_, err = serverHelper.GetJSON("/api/v1/diagnostics", &report)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Status).To(Equal("stale"))
			Expect(report.CachedCount).To(Equal(4))
			Expect(report.LastError).To(ContainSubstring("502"))
		})

		It("should reject a response in an unknown shape", func() {
			startServer("")
			waitForLiveProducts(4)

			staffAPI.RespondWith(http.StatusOK, `{"lenders":[{"id":"x"}]}`)

			var result syncResult
			code, err := serverHelper.TriggerSync(&result)
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal(http.StatusBadGateway))
			Expect(result.Message).To(Equal("Sync failed: Invalid API response format"))
		})

		It("should publish a notification for each pass", func() {
			startServer("")
			waitForLiveProducts(4)

			var result syncResult
			_, err := serverHelper.TriggerSync(&result)
			Expect(err).NotTo(HaveOccurred())

			var feed struct {
				Notifications []struct {
					Level   string `json:"level"`
					Title   string `json:"title"`
					Trigger string `json:"trigger"`
				} `json:"notifications"`
			}
			_, err = serverHelper.GetJSON("/api/v1/notifications", &feed)
			Expect(err).NotTo(HaveOccurred())
			Expect(feed.Notifications).NotTo(BeEmpty())
			Expect(feed.Notifications[0].Trigger).To(Equal("manual"))
			Expect(feed.Notifications[0].Title).To(Equal("Lender products updated"))
		})
	})

	Context("authentication", func() {
		It("should send the configured bearer token", func() {
			staffAPI.RequireToken("s3cret")
			startServer("  token: s3cret\n")
			waitForLiveProducts(4)
		})
	})
})
