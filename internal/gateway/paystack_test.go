package gateway_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pulseawards/vote-payments/internal"
	"github.com/pulseawards/vote-payments/internal/gateway"
)

var _ = Describe("PaystackAdapter", func() {
	var (
		server  *httptest.Server
		adapter *gateway.PaystackAdapter
		logger  *slog.Logger

		initStatus   int
		initBody     map[string]interface{}
		verifyStatus int
		verifyBody   map[string]interface{}
	)

	const secretKey = "sk_test_abc123"

	sign := func(payload []byte) string {
		mac := hmac.New(sha512.New, []byte(secretKey))
		mac.Write(payload)
		return hex.EncodeToString(mac.Sum(nil))
	}

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		initStatus = http.StatusOK
		initBody = map[string]interface{}{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]interface{}{
				"authorization_url": "https://checkout.example.test/abc",
				"access_code":       "ac_1",
				"reference":         "ps_ref_42",
			},
		}
		verifyStatus = http.StatusOK
		verifyBody = map[string]interface{}{
			"status": true,
			"data": map[string]interface{}{
				"id":               91827364,
				"status":           "success",
				"reference":        "ps_ref_42",
				"amount":           5000,
				"gateway_response": "Successful",
			},
		}

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch {
			case r.URL.Path == "/transaction/initialize":
				w.WriteHeader(initStatus)
				json.NewEncoder(w).Encode(initBody)
			case r.URL.Path == "/transaction/verify/ps_ref_42":
				w.WriteHeader(verifyStatus)
				json.NewEncoder(w).Encode(verifyBody)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))

		adapter = gateway.NewPaystackAdapter(gateway.PaystackConfig{
			BaseURL:     server.URL,
			SecretKey:   secretKey,
			CallbackURL: "https://example.test/payments/return",
		}, logger)
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Submit", func() {
		submitRequest := &gateway.SubmitRequest{
			AttemptID:    "attempt-9",
			PayerContact: "voter@example.com",
			AmountCents:  5000,
			Currency:     "KES",
			Description:  "5 vote(s) for Wanjiku M.",
		}

		It("should return the checkout URL and reference", func() {
			result, err := adapter.Submit(context.Background(), submitRequest)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Reference).To(Equal("ps_ref_42"))
			Expect(result.CheckoutURL).To(Equal("https://checkout.example.test/abc"))
		})

		It("should surface a gateway rejection", func() {
			initBody = map[string]interface{}{
				"status":  false,
				"message": "Invalid key",
			}

			_, err := adapter.Submit(context.Background(), submitRequest)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("Invalid key"))
		})

		It("should surface an HTTP error from the gateway", func() {
			initStatus = http.StatusBadGateway
			initBody = map[string]interface{}{}

			_, err := adapter.Submit(context.Background(), submitRequest)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Verify", func() {
		It("should map a successful charge", func() {
			result, err := adapter.Verify(context.Background(), "ps_ref_42")

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Reference).To(Equal("ps_ref_42"))
			Expect(result.Outcome).To(Equal(gateway.OutcomeSuccess))
			Expect(result.GatewayTransactionID).To(Equal("91827364"))
		})

		It("should map an abandoned charge to failed with the gateway response", func() {
			verifyBody["data"].(map[string]interface{})["status"] = "abandoned"
			verifyBody["data"].(map[string]interface{})["gateway_response"] = "The transaction was abandoned"

			result, err := adapter.Verify(context.Background(), "ps_ref_42")

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Outcome).To(Equal(gateway.OutcomeFailed))
			Expect(result.FailureReason).To(ContainSubstring("abandoned"))
		})

		It("should map an ongoing charge to pending", func() {
			verifyBody["data"].(map[string]interface{})["status"] = "ongoing"

			result, err := adapter.Verify(context.Background(), "ps_ref_42")

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Outcome).To(Equal(gateway.OutcomePending))
		})

		It("should surface an unknown reference", func() {
			_, err := adapter.Verify(context.Background(), "ps_ref_missing")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("NormalizeCallback", func() {
		It("should map charge.success to success", func() {
			payload := []byte(`{
				"event": "charge.success",
				"data": {
					"id": 123,
					"status": "success",
					"reference": "ps_ref_42",
					"gateway_response": "Successful"
				}
			}`)

			result, err := adapter.NormalizeCallback(payload)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Reference).To(Equal("ps_ref_42"))
			Expect(result.Outcome).To(Equal(gateway.OutcomeSuccess))
		})

		It("should map charge.failed to failed", func() {
			payload := []byte(`{
				"event": "charge.failed",
				"data": {
					"status": "failed",
					"reference": "ps_ref_42",
					"gateway_response": "Declined"
				}
			}`)

			result, err := adapter.NormalizeCallback(payload)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Outcome).To(Equal(gateway.OutcomeFailed))
			Expect(result.FailureReason).To(Equal("Declined"))
		})

		It("should fall back to the data status for unknown events", func() {
			payload := []byte(`{
				"event": "transfer.updated",
				"data": {
					"status": "success",
					"reference": "ps_ref_42"
				}
			}`)

			result, err := adapter.NormalizeCallback(payload)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Outcome).To(Equal(gateway.OutcomeSuccess))
		})

		It("should find the reference under the trxref key", func() {
			payload := []byte(`{
				"event": "charge.success",
				"data": {
					"status": "success",
					"trxref": "ps_ref_43"
				}
			}`)

			result, err := adapter.NormalizeCallback(payload)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Reference).To(Equal("ps_ref_43"))
		})

		It("should reject a payload with no reference", func() {
			_, err := adapter.NormalizeCallback([]byte(`{"event":"charge.success","data":{"status":"success"}}`))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("VerifySignature", func() {
		payload := []byte(`{"event":"charge.success"}`)

		It("should accept a valid signature", func() {
			Expect(adapter.VerifySignature(payload, sign(payload))).To(Succeed())
		})

		It("should reject a missing signature", func() {
			err := adapter.VerifySignature(payload, "")

			Expect(err).To(HaveOccurred())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeBadSignature))
		})

		It("should reject a tampered payload", func() {
			err := adapter.VerifySignature([]byte(`{"event":"charge.failed"}`), sign(payload))

			Expect(err).To(HaveOccurred())
		})
	})
})
