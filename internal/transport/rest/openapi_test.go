package rest_test

import (
	"context"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestRest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "REST Suite")
}

var _ = Describe("OpenAPI document", func() {
	var doc *openapi3.T

	BeforeEach(func() {
		loader := openapi3.NewLoader()
		var err error
		doc, err = loader.LoadFromFile("../../../api/openapi.yml")
		Expect(err).ToNot(HaveOccurred())
	})

	It("should be a valid OpenAPI 3 document", func() {
		Expect(doc.Validate(context.Background())).To(Succeed())
	})

	It("should describe every public payment route", func() {
		for _, path := range []string{
			"/votes",
			"/votes/{id}/status",
			"/payments/verify",
			"/webhooks/mpesa",
			"/webhooks/paystack",
			"/creators/{id}/tally",
		} {
			Expect(doc.Paths.Find(path)).ToNot(BeNil(), "missing path %s", path)
		}
	})

	It("should require bearer auth on the admin routes", func() {
		for _, path := range []string{"/admin/payments", "/admin/payments/stats"} {
			item := doc.Paths.Find(path)
			Expect(item).ToNot(BeNil(), "missing path %s", path)
			Expect(item.Get).ToNot(BeNil())
			Expect(item.Get.Security).ToNot(BeNil())
		}
	})
})
