package payment_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	internal "github.com/pulseawards/vote-payments/internal"
	paymentmodel "github.com/pulseawards/vote-payments/internal/core/datamodel/payment"
	"github.com/pulseawards/vote-payments/internal/gateway"
	paymentPkg "github.com/pulseawards/vote-payments/internal/payment"
)

type mockPaymentService struct {
	initiateResponse *paymentPkg.InitiateVoteResponse
	initiateError    error

	callbackError error
	callbackCalls int
	callbackKind  string

	statusResponse *paymentPkg.StatusResponse
	statusError    error

	verifyResponse *paymentPkg.StatusResponse
	verifyError    error

	listAttempts []*paymentmodel.PaymentAttempt
	listError    error

	stats      map[string]int64
	statsError error
}

func (m *mockPaymentService) Initiate(ctx context.Context, req *paymentPkg.InitiateVoteRequest) (*paymentPkg.InitiateVoteResponse, error) {
	if m.initiateError != nil {
		return nil, m.initiateError
	}
	return m.initiateResponse, nil
}

func (m *mockPaymentService) HandleCallback(ctx context.Context, gatewayKind string, payload []byte) error {
	m.callbackCalls++
	m.callbackKind = gatewayKind
	return m.callbackError
}

func (m *mockPaymentService) VerifyByReference(ctx context.Context, reference string) (*paymentPkg.StatusResponse, error) {
	if m.verifyError != nil {
		return nil, m.verifyError
	}
	return m.verifyResponse, nil
}

func (m *mockPaymentService) GetStatus(ctx context.Context, trackingID string) (*paymentPkg.StatusResponse, error) {
	if m.statusError != nil {
		return nil, m.statusError
	}
	return m.statusResponse, nil
}

func (m *mockPaymentService) ExpireStale(ctx context.Context, limit int) (int, error) {
	return 0, nil
}

func (m *mockPaymentService) ListAttempts(status string, offset, limit int) ([]*paymentmodel.PaymentAttempt, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	return m.listAttempts, nil
}

func (m *mockPaymentService) Stats() (map[string]int64, error) {
	if m.statsError != nil {
		return nil, m.statsError
	}
	return m.stats, nil
}

var _ = Describe("PaymentHandler", func() {
	var (
		handler *paymentPkg.Handler
		svc     *mockPaymentService
	)

	BeforeEach(func() {
		svc = &mockPaymentService{}
		handler = paymentPkg.NewHandler(svc)
	})

	Describe("InitiateVote", func() {
		It("should respond 202 with the tracking handle", func() {
			svc.initiateResponse = &paymentPkg.InitiateVoteResponse{
				TrackingID:      "t-1",
				Gateway:         paymentmodel.GatewayPush,
				Status:          paymentmodel.StatusPending,
				CustomerMessage: "Check your phone",
			}

			body, _ := json.Marshal(map[string]interface{}{
				"creator_id": 1, "gateway": "push", "payer_phone": "0712345678",
				"amount": 5000, "votes": 5,
			})
			req := httptest.NewRequest(http.MethodPost, "/votes", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			handler.InitiateVote(rec, req)

			Expect(rec.Code).To(Equal(http.StatusAccepted))
			var resp paymentPkg.InitiateVoteResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.TrackingID).To(Equal("t-1"))
		})

		It("should respond 400 for a malformed body", func() {
			req := httptest.NewRequest(http.MethodPost, "/votes", bytes.NewReader([]byte(`{not json`)))
			rec := httptest.NewRecorder()

			handler.InitiateVote(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should map a pricing mismatch to 400 with the structured error", func() {
			svc.initiateError = internal.NewValidationError("amount does not match price", internal.ErrCodePricingMismatch)

			body, _ := json.Marshal(map[string]interface{}{
				"creator_id": 1, "gateway": "push", "payer_phone": "0712345678",
				"amount": 1, "votes": 5,
			})
			req := httptest.NewRequest(http.MethodPost, "/votes", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			handler.InitiateVote(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("PRICING_MISMATCH"))
		})

		It("should map a gateway failure to 502", func() {
			svc.initiateError = internal.NewGatewayError("payment could not be started", internal.ErrCodeGatewayUnavailable, nil)

			body, _ := json.Marshal(map[string]interface{}{
				"creator_id": 1, "gateway": "push", "payer_phone": "0712345678",
				"amount": 5000, "votes": 5,
			})
			req := httptest.NewRequest(http.MethodPost, "/votes", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			handler.InitiateVote(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadGateway))
		})
	})

	Describe("GetStatus", func() {
		newStatusRequest := func(id string) (*httptest.ResponseRecorder, *http.Request) {
			router := chi.NewRouter()
			router.Get("/votes/{id}/status", handler.GetStatus)
			req := httptest.NewRequest(http.MethodGet, "/votes/"+id+"/status", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			return rec, req
		}

		It("should respond 200 with the status projection", func() {
			svc.statusResponse = &paymentPkg.StatusResponse{
				TrackingID: "t-1",
				Status:     paymentmodel.StatusSuccess,
				Votes:      5,
			}

			rec, _ := newStatusRequest("t-1")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"votes":5`))
		})

		It("should respond 404 for an unknown tracking id", func() {
			svc.statusError = internal.ErrAttemptNotFound

			rec, _ := newStatusRequest("missing")

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("VerifyPayment", func() {
		It("should respond 400 without a reference", func() {
			req := httptest.NewRequest(http.MethodGet, "/payments/verify", nil)
			rec := httptest.NewRecorder()

			handler.VerifyPayment(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should respond 404 for an unknown reference", func() {
			svc.verifyError = internal.ErrUnknownReference

			req := httptest.NewRequest(http.MethodGet, "/payments/verify?reference=ps_ref_x", nil)
			rec := httptest.NewRecorder()

			handler.VerifyPayment(rec, req)

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("should respond 200 with the verified status", func() {
			svc.verifyResponse = &paymentPkg.StatusResponse{
				TrackingID: "t-1",
				Status:     paymentmodel.StatusSuccess,
				Votes:      5,
			}

			req := httptest.NewRequest(http.MethodGet, "/payments/verify?reference=ps_ref_1", nil)
			rec := httptest.NewRecorder()

			handler.VerifyPayment(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("ListPayments", func() {
		It("should reject an unknown status filter", func() {
			req := httptest.NewRequest(http.MethodGet, "/admin/payments?status=bogus", nil)
			rec := httptest.NewRecorder()

			handler.ListPayments(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should respond 200 with the page envelope", func() {
			svc.listAttempts = []*paymentmodel.PaymentAttempt{
				{ID: "t-1", Status: paymentmodel.StatusSuccess},
			}

			req := httptest.NewRequest(http.MethodGet, "/admin/payments?status=success&limit=10", nil)
			rec := httptest.NewRecorder()

			handler.ListPayments(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"limit":10`))
		})
	})

	Describe("PaymentStats", func() {
		It("should respond with per-status counts", func() {
			svc.stats = map[string]int64{
				paymentmodel.StatusPending: 2,
				paymentmodel.StatusSuccess: 7,
				paymentmodel.StatusFailed:  1,
			}

			req := httptest.NewRequest(http.MethodGet, "/admin/payments/stats", nil)
			rec := httptest.NewRecorder()

			handler.PaymentStats(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			var stats paymentPkg.StatsResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &stats)).To(Succeed())
			Expect(stats.Success).To(Equal(int64(7)))
		})
	})
})

var _ = Describe("WebhookHandler", func() {
	const paystackSecret = "sk_test_webhook"

	var (
		handler  *paymentPkg.WebhookHandler
		svc      *mockPaymentService
		registry *gateway.Registry
	)

	signBody := func(body []byte) string {
		mac := hmac.New(sha512.New, []byte(paystackSecret))
		mac.Write(body)
		return hex.EncodeToString(mac.Sum(nil))
	}

	BeforeEach(func() {
		svc = &mockPaymentService{}
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		registry = gateway.NewRegistry(
			gateway.NewPaystackAdapter(gateway.PaystackConfig{
				BaseURL:   "https://api.example.test",
				SecretKey: paystackSecret,
			}, lg),
		)
		handler = paymentPkg.NewWebhookHandler(svc, registry)
	})

	Describe("HandleMpesaCallback", func() {
		It("should acknowledge a processed callback", func() {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/mpesa", bytes.NewReader([]byte(`{"Body":{}}`)))
			rec := httptest.NewRecorder()

			handler.HandleMpesaCallback(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"ResultCode":0`))
			Expect(svc.callbackCalls).To(Equal(1))
			Expect(svc.callbackKind).To(Equal(paymentmodel.GatewayPush))
		})

		It("should respond 404 for an unknown reference so the gateway retries", func() {
			svc.callbackError = internal.ErrUnknownReference

			req := httptest.NewRequest(http.MethodPost, "/webhooks/mpesa", bytes.NewReader([]byte(`{"Body":{}}`)))
			rec := httptest.NewRecorder()

			handler.HandleMpesaCallback(rec, req)

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("HandlePaystackWebhook", func() {
		It("should reject a missing signature", func() {
			req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewReader([]byte(`{"event":"charge.success"}`)))
			rec := httptest.NewRecorder()

			handler.HandlePaystackWebhook(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(svc.callbackCalls).To(BeZero())
		})

		It("should reject a signature computed with the wrong secret", func() {
			body := []byte(`{"event":"charge.success"}`)
			mac := hmac.New(sha512.New, []byte("wrong-secret"))
			mac.Write(body)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewReader(body))
			req.Header.Set("X-Paystack-Signature", hex.EncodeToString(mac.Sum(nil)))
			rec := httptest.NewRecorder()

			handler.HandlePaystackWebhook(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(svc.callbackCalls).To(BeZero())
		})

		It("should accept a correctly signed event", func() {
			body := []byte(`{"event":"charge.success","data":{"reference":"ps_ref_1","status":"success"}}`)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewReader(body))
			req.Header.Set("X-Paystack-Signature", signBody(body))
			rec := httptest.NewRecorder()

			handler.HandlePaystackWebhook(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(svc.callbackCalls).To(Equal(1))
			Expect(svc.callbackKind).To(Equal(paymentmodel.GatewayRedirect))
		})
	})
})
