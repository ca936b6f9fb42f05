// Package gatewaysim is a local stand-in for both payment gateways. It
// settles submitted charges after a delay and delivers gateway-shaped
// callbacks to the service's webhook endpoints, so the full reconciliation
// path can run without sandbox credentials.
package gatewaysim

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	internal "github.com/pulseawards/vote-payments/internal"
	paymentmodel "github.com/pulseawards/vote-payments/internal/core/datamodel/payment"
)

// SettleJob is one charge the simulator will settle and call back for.
type SettleJob struct {
	GatewayKind string
	Reference   string
	AmountCents int64
}

type Worker struct {
	ID         int
	WorkerPool chan chan SettleJob
	JobChannel chan SettleJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan SettleJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan SettleJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(SettleJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {

			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker settling charge", "worker_id", w.ID, "reference", job.Reference)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type Simulator struct {
	cfg    internal.SimulatorConfig
	logger *slog.Logger

	jobQueue   chan SettleJob
	workerPool chan chan SettleJob
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewSimulator(cfg internal.SimulatorConfig, logger *slog.Logger) *Simulator {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	jobQueueSize := cfg.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	s := &Simulator{
		cfg:    cfg,
		logger: logger,

		maxWorkers: maxWorkers,
		jobQueue:   make(chan SettleJob, jobQueueSize),
		workerPool: make(chan chan SettleJob, maxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}

	s.startWorkerPool()

	return s
}

func (s *Simulator) startWorkerPool() {
	s.once.Do(func() {

		for i := 0; i < s.maxWorkers; i++ {
			worker := NewWorker(i, s.workerPool, s.logger)
			worker.Start(s.ctx, &s.wg, s.settle)
		}

		go s.dispatch()

		s.logger.Info("gateway simulator worker pool started",
			"max_workers", s.maxWorkers,
			"queue_size", cap(s.jobQueue))
	})
}

func (s *Simulator) dispatch() {
	s.wg.Add(1)
	defer s.wg.Done()

	for {
		select {
		case job := <-s.jobQueue:

			select {
			case jobChannel := <-s.workerPool:

				select {
				case jobChannel <- job:

				case <-s.ctx.Done():
					s.logger.Info("dispatcher shutting down")
					return
				}
			case <-s.ctx.Done():
				s.logger.Info("dispatcher shutting down")
				return
			}
		case <-s.ctx.Done():
			s.logger.Info("dispatcher shutting down")
			return
		}
	}
}

func (s *Simulator) Shutdown() {
	s.logger.Info("shutting down gateway simulator")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("gateway simulator shutdown complete")
}

// Enqueue accepts a charge for delayed settlement. Returns an error when the
// queue is full rather than blocking the caller.
func (s *Simulator) Enqueue(job SettleJob) error {
	if job.Reference == "" {
		return fmt.Errorf("settle job needs a gateway reference")
	}

	select {
	case s.jobQueue <- job:
		s.logger.Info("charge queued for settlement",
			"reference", job.Reference,
			"gateway", job.GatewayKind,
			"queue_length", len(s.jobQueue))
		return nil
	default:
		s.logger.Warn("settlement queue full, rejecting charge",
			"reference", job.Reference,
			"queue_capacity", cap(s.jobQueue))
		return fmt.Errorf("settlement queue full")
	}
}

func (s *Simulator) settle(job SettleJob) {
	delay := s.cfg.SettleDelay
	if delay <= 0 {
		delay = 3 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))

	select {
	case <-time.After(delay + jitter):

	case <-s.ctx.Done():
		s.logger.Info("settlement cancelled", "reference", job.Reference)
		return
	}

	success := rand.Float64() < s.cfg.SuccessRate

	var payload []byte
	var webhookURL string
	var signature string
	var err error

	switch job.GatewayKind {
	case paymentmodel.GatewayPush:
		webhookURL = s.cfg.MpesaWebhookURL
		payload, err = mpesaCallbackPayload(job, success)
	case paymentmodel.GatewayRedirect:
		webhookURL = s.cfg.PaystackWebhookURL
		payload, err = paystackEventPayload(job, success)
		if err == nil {
			signature = signPaystack(payload, s.cfg.PaystackSecret)
		}
	default:
		s.logger.Error("unknown gateway kind in settle job", "gateway", job.GatewayKind)
		return
	}
	if err != nil {
		s.logger.Error("failed to build callback payload", "error", err, "reference", job.Reference)
		return
	}

	s.logger.Info("settling charge",
		"reference", job.Reference,
		"gateway", job.GatewayKind,
		"success", success,
		"delay", (delay + jitter).String())

	s.deliver(webhookURL, payload, signature, job.Reference)
}

func (s *Simulator) deliver(webhookURL string, payload []byte, signature, reference string) {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		s.logger.Error("failed to create webhook request", "error", err, "reference", reference)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Paystack-Signature", signature)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		s.logger.Error("webhook delivery failed", "error", err, "reference", reference)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		s.logger.Info("webhook delivered",
			"reference", reference,
			"status_code", resp.StatusCode)
	} else {
		s.logger.Warn("webhook delivery rejected",
			"reference", reference,
			"status_code", resp.StatusCode)
	}
}

// mpesaCallbackPayload builds the Daraja result envelope for a settled STK
// prompt. Failure uses result code 1032, the code the real gateway sends
// when the payer dismisses the prompt.
func mpesaCallbackPayload(job SettleJob, success bool) ([]byte, error) {
	stk := map[string]interface{}{
		"MerchantRequestID": fmt.Sprintf("sim-%d", rand.Int63()),
		"CheckoutRequestID": job.Reference,
	}

	if success {
		stk["ResultCode"] = 0
		stk["ResultDesc"] = "The service request is processed successfully."
		stk["CallbackMetadata"] = map[string]interface{}{
			"Item": []map[string]interface{}{
				{"Name": "Amount", "Value": float64(job.AmountCents) / 100},
				{"Name": "MpesaReceiptNumber", "Value": fmt.Sprintf("SIM%08d", rand.Intn(100000000))},
				{"Name": "TransactionDate", "Value": time.Now().Format("20060102150405")},
			},
		}
	} else {
		stk["ResultCode"] = 1032
		stk["ResultDesc"] = "Request cancelled by user"
	}

	return json.Marshal(map[string]interface{}{
		"Body": map[string]interface{}{
			"stkCallback": stk,
		},
	})
}

func paystackEventPayload(job SettleJob, success bool) ([]byte, error) {
	event := "charge.success"
	status := "success"
	if !success {
		event = "charge.failed"
		status = "failed"
	}

	return json.Marshal(map[string]interface{}{
		"event": event,
		"data": map[string]interface{}{
			"id":        rand.Int63(),
			"reference": job.Reference,
			"status":    status,
			"amount":    job.AmountCents,
			"paid_at":   time.Now().Format(time.RFC3339),
		},
	})
}

func signPaystack(payload []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
