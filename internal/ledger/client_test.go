package ledger_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	txmodel "github.com/frahmantamala/ngo-accountability/internal/core/datamodel/transaction"
	"github.com/frahmantamala/ngo-accountability/internal/ledger"
	"github.com/frahmantamala/ngo-accountability/internal/transaction"
)

func TestLedgerClient(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "LedgerClient Suite")
}

type mockRepo struct {
	mu      sync.Mutex
	records map[int64]*txmodel.PendingTransaction
}

func newMockRepo(records ...*txmodel.PendingTransaction) *mockRepo {
	m := &mockRepo{records: make(map[int64]*txmodel.PendingTransaction)}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return m
}

func (m *mockRepo) GetByID(id int64) (*txmodel.PendingTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record := m.records[id]
	clone := *record
	return &clone, nil
}

func (m *mockRepo) UpdateIfStatus(id int64, expectedStatus string, patch map[string]interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok || record.Status != expectedStatus {
		return false, nil
	}
	if status, ok := patch["status"].(string); ok {
		record.Status = status
	}
	if txID, ok := patch["ledger_tx_id"].(string); ok {
		record.LedgerTxID = &txID
	}
	if recordedAt, ok := patch["recorded_at"].(time.Time); ok {
		record.RecordedAt = &recordedAt
	}
	return true, nil
}

var _ = Describe("Ledger Client", func() {
	var (
		testLogger *slog.Logger
		repo       *mockRepo
		record     *txmodel.PendingTransaction
		ctx        context.Context
	)

	proofHash := "dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd"

	BeforeEach(func() {
		testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		ctx = context.Background()
		record = &txmodel.PendingTransaction{
			ID:            1,
			TransactionID: "tx-1",
			NgoID:         7,
			Amount:        250000,
			Cause:         "disaster relief",
			Status:        transaction.StatusDocumentUploaded,
			ReceiverKey:   "wd-tx-1",
		}
		repo = newMockRepo(record)
	})

	Describe("Record", func() {
		It("submits the payload and links the confirmed identifier", func() {
			var received map[string]interface{}
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/v1/records"))
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer secret"))
				Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
				w.WriteHeader(http.StatusCreated)
				json.NewEncoder(w).Encode(map[string]string{"tx_id": "LEDGER-42"})
			}))
			defer server.Close()

			client := ledger.NewClient(server.URL, "secret", time.Second, false, repo, testLogger)

			txID, simulated, err := client.Record(ctx, record, &proofHash)
			Expect(err).NotTo(HaveOccurred())
			Expect(simulated).To(BeFalse())
			Expect(txID).To(Equal("LEDGER-42"))

			Expect(received["ngo_key"]).To(Equal("ngo-7"))
			Expect(received["receiver_key"]).To(Equal("wd-tx-1"))
			Expect(received["proof_hash"]).To(Equal(proofHash))

			stored, _ := repo.GetByID(1)
			Expect(stored.Status).To(Equal(transaction.StatusRecorded))
			Expect(*stored.LedgerTxID).To(Equal("LEDGER-42"))
			Expect(stored.RecordedAt).NotTo(BeNil())
		})

		It("uses the zero hash when no proof is supplied", func() {
			var received map[string]interface{}
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
				json.NewEncoder(w).Encode(map[string]string{"tx_id": "LEDGER-43"})
			}))
			defer server.Close()

			record.Status = transaction.StatusExpired
			client := ledger.NewClient(server.URL, "", time.Second, false, repo, testLogger)

			_, _, err := client.Record(ctx, record, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(received["proof_hash"]).To(Equal(ledger.ZeroHash))
		})

		It("short-circuits when a ledger identifier is already set", func() {
			calls := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				json.NewEncoder(w).Encode(map[string]string{"tx_id": "LEDGER-44"})
			}))
			defer server.Close()

			existing := "LEDGER-OLD"
			record.LedgerTxID = &existing
			client := ledger.NewClient(server.URL, "", time.Second, false, repo, testLogger)

			txID, simulated, err := client.Record(ctx, record, &proofHash)
			Expect(err).NotTo(HaveOccurred())
			Expect(simulated).To(BeFalse())
			Expect(txID).To(Equal("LEDGER-OLD"))
			Expect(calls).To(Equal(0))
		})

		It("refuses records that are not ready for the ledger", func() {
			record.Status = transaction.StatusPending
			client := ledger.NewClient("", "", time.Second, true, repo, testLogger)

			_, _, err := client.Record(ctx, record, nil)
			Expect(err).To(HaveOccurred())
		})

		Context("degraded simulation mode", func() {
			It("falls back when the ledger is unreachable", func() {
				client := ledger.NewClient("http://127.0.0.1:1", "", 200*time.Millisecond, true, repo, testLogger)

				txID, simulated, err := client.Record(ctx, record, &proofHash)
				Expect(err).NotTo(HaveOccurred())
				Expect(simulated).To(BeTrue())
				Expect(txID).To(HavePrefix("SIM-"))
				Expect(txID).To(Equal(ledger.SimulatedTxID("wd-tx-1")))

				stored, _ := repo.GetByID(1)
				Expect(stored.Status).To(Equal(transaction.StatusRecorded))
				Expect(*stored.LedgerTxID).To(Equal(txID))
			})

			It("falls back on server errors", func() {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusInternalServerError)
				}))
				defer server.Close()

				client := ledger.NewClient(server.URL, "", time.Second, true, repo, testLogger)

				txID, simulated, err := client.Record(ctx, record, &proofHash)
				Expect(err).NotTo(HaveOccurred())
				Expect(simulated).To(BeTrue())
				Expect(txID).To(Equal(ledger.SimulatedTxID("wd-tx-1")))
			})

			It("fabricates the same identifier for repeated outages", func() {
				Expect(ledger.SimulatedTxID("wd-tx-1")).To(Equal(ledger.SimulatedTxID("wd-tx-1")))
				Expect(ledger.SimulatedTxID("wd-tx-1")).NotTo(Equal(ledger.SimulatedTxID("wd-tx-2")))
			})

			It("simulates when no endpoint is configured", func() {
				client := ledger.NewClient("", "", time.Second, true, repo, testLogger)

				txID, simulated, err := client.Record(ctx, record, &proofHash)
				Expect(err).NotTo(HaveOccurred())
				Expect(simulated).To(BeTrue())
				Expect(txID).To(Equal(ledger.SimulatedTxID("wd-tx-1")))
			})

			It("fails instead of simulating when the fallback is disabled", func() {
				client := ledger.NewClient("http://127.0.0.1:1", "", 200*time.Millisecond, false, repo, testLogger)

				_, _, err := client.Record(ctx, record, &proofHash)
				Expect(err).To(HaveOccurred())
			})
		})

		It("adopts the concurrent winner's identifier when the status moved", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{"tx_id": "LEDGER-45"})
			}))
			defer server.Close()

			// another actor already finished recording
			winner := "LEDGER-WINNER"
			repo.UpdateIfStatus(1, transaction.StatusDocumentUploaded, map[string]interface{}{
				"status":       transaction.StatusRecorded,
				"ledger_tx_id": winner,
			})

			client := ledger.NewClient(server.URL, "", time.Second, false, repo, testLogger)

			txID, _, err := client.Record(ctx, record, &proofHash)
			Expect(err).NotTo(HaveOccurred())
			Expect(txID).To(Equal(winner))
		})
	})

	Describe("ListByNgo", func() {
		It("reads back entries under the NGO key", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/v1/records"))
				Expect(r.URL.Query().Get("ngo_key")).To(Equal("ngo-7"))
				json.NewEncoder(w).Encode([]ledger.Entry{
					{TxID: "LEDGER-42", NgoKey: "ngo-7", ReceiverKey: "wd-tx-1", Amount: 250000},
				})
			}))
			defer server.Close()

			client := ledger.NewClient(server.URL, "", time.Second, false, repo, testLogger)

			entries, err := client.ListByNgo(ctx, 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].ReceiverKey).To(Equal("wd-tx-1"))
		})

		It("returns nothing when no endpoint is configured", func() {
			client := ledger.NewClient("", "", time.Second, true, repo, testLogger)

			entries, err := client.ListByNgo(ctx, 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})
	})

	Describe("Ping", func() {
		It("reports an unconfigured ledger as unhealthy", func() {
			client := ledger.NewClient("", "", time.Second, true, repo, testLogger)
			Expect(client.Ping(ctx)).To(HaveOccurred())
		})

		It("succeeds against a live endpoint", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/v1/ping"))
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			client := ledger.NewClient(server.URL, "", time.Second, false, repo, testLogger)
			Expect(client.Ping(ctx)).To(Succeed())
		})
	})
})
