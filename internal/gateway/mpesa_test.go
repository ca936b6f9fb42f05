package gateway_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pulseawards/vote-payments/internal/gateway"
)

func TestGateway(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Gateway Adapter Suite")
}

var _ = Describe("MpesaAdapter", func() {
	var (
		server  *httptest.Server
		adapter *gateway.MpesaAdapter
		logger  *slog.Logger

		tokenCalls int
		stkStatus  int
		stkBody    map[string]interface{}
		lastStk    map[string]interface{}
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		tokenCalls = 0
		stkStatus = http.StatusOK
		stkBody = map[string]interface{}{
			"MerchantRequestID": "mr-1",
			"CheckoutRequestID": "ws_CO_42",
			"ResponseCode":      "0",
			"CustomerMessage":   "Success. Request accepted for processing",
		}

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/oauth/v1/generate":
				tokenCalls++
				user, _, ok := r.BasicAuth()
				if !ok || user != "ck" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{
					"access_token": "tok-123",
					"expires_in":   "3599",
				})
			case "/mpesa/stkpush/v1/processrequest":
				body, _ := json.Marshal(stkBody)
				reqBody, _ := io.ReadAll(r.Body)
				_ = json.Unmarshal(reqBody, &lastStk)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(stkStatus)
				w.Write(body)
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))

		adapter = gateway.NewMpesaAdapter(gateway.MpesaConfig{
			BaseURL:        server.URL,
			ConsumerKey:    "ck",
			ConsumerSecret: "cs",
			ShortCode:      "174379",
			Passkey:        "passkey",
			CallbackURL:    "https://example.test/webhooks/mpesa",
		}, logger)
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Submit", func() {
		submitRequest := &gateway.SubmitRequest{
			AttemptID:    "attempt-1",
			PayerContact: "254712345678",
			AmountCents:  5000,
			Currency:     "KES",
			Description:  "5 vote(s) for Wanjiku M.",
		}

		It("should return the checkout request id as the reference", func() {
			result, err := adapter.Submit(context.Background(), submitRequest)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Reference).To(Equal("ws_CO_42"))
			Expect(result.CustomerMessage).To(ContainSubstring("accepted"))
		})

		It("should send the amount in whole currency units", func() {
			_, err := adapter.Submit(context.Background(), submitRequest)

			Expect(err).ToNot(HaveOccurred())
			Expect(lastStk["Amount"]).To(BeNumerically("==", 50))
			Expect(lastStk["AccountReference"]).To(Equal("attempt-1"))
		})

		It("should reuse the cached OAuth token across submissions", func() {
			_, err := adapter.Submit(context.Background(), submitRequest)
			Expect(err).ToNot(HaveOccurred())
			_, err = adapter.Submit(context.Background(), submitRequest)
			Expect(err).ToNot(HaveOccurred())

			Expect(tokenCalls).To(Equal(1))
		})

		It("should surface a gateway rejection", func() {
			stkBody = map[string]interface{}{
				"ResponseCode":        "1",
				"ResponseDescription": "Invalid Amount",
			}

			_, err := adapter.Submit(context.Background(), submitRequest)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("Invalid Amount"))
		})

		It("should surface an HTTP error from the gateway", func() {
			stkStatus = http.StatusServiceUnavailable
			stkBody = map[string]interface{}{}

			_, err := adapter.Submit(context.Background(), submitRequest)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("NormalizeCallback", func() {
		It("should map result code 0 to success with the receipt", func() {
			payload := []byte(`{
				"Body": {"stkCallback": {
					"CheckoutRequestID": "ws_CO_42",
					"ResultCode": 0,
					"ResultDesc": "The service request is processed successfully.",
					"CallbackMetadata": {"Item": [
						{"Name": "Amount", "Value": 50},
						{"Name": "MpesaReceiptNumber", "Value": "RCPT77"}
					]}
				}}
			}`)

			result, err := adapter.NormalizeCallback(payload)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Reference).To(Equal("ws_CO_42"))
			Expect(result.Outcome).To(Equal(gateway.OutcomeSuccess))
			Expect(result.GatewayTransactionID).To(Equal("RCPT77"))
		})

		It("should map result code 1032 to a cancellation failure", func() {
			payload := []byte(`{
				"Body": {"stkCallback": {
					"CheckoutRequestID": "ws_CO_42",
					"ResultCode": 1032,
					"ResultDesc": "Request cancelled by user"
				}}
			}`)

			result, err := adapter.NormalizeCallback(payload)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Outcome).To(Equal(gateway.OutcomeFailed))
			Expect(result.FailureReason).To(ContainSubstring("cancelled"))
		})

		It("should find the reference under alternate field casings", func() {
			payload := []byte(`{
				"Body": {"stkCallback": {
					"checkout_request_id": "ws_CO_43",
					"ResultCode": 2001,
					"ResultDesc": "Wrong PIN"
				}}
			}`)

			result, err := adapter.NormalizeCallback(payload)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Reference).To(Equal("ws_CO_43"))
			Expect(result.Outcome).To(Equal(gateway.OutcomeFailed))
			Expect(result.FailureReason).To(Equal("Wrong PIN"))
		})

		It("should reject a callback with no reference anywhere", func() {
			_, err := adapter.NormalizeCallback([]byte(`{"Body":{"stkCallback":{"ResultCode":0}}}`))
			Expect(err).To(HaveOccurred())
		})

		It("should reject a malformed payload", func() {
			_, err := adapter.NormalizeCallback([]byte(`not-json`))
			Expect(err).To(HaveOccurred())
		})
	})
})
