package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/faultlinehq/faultline/internal/config"
	"github.com/faultlinehq/faultline/internal/database"
	"github.com/faultlinehq/faultline/internal/llm"
	"github.com/faultlinehq/faultline/internal/quota"
	"github.com/faultlinehq/faultline/internal/synth"
)

type mockProvider struct {
	response string
	err      error
	calls    int
}

func (m *mockProvider) Generate(_ context.Context, _ []llm.Message, _ int) (string, error) {
	m.calls++
	return m.response, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }

const validResponse = `{
	"rootCause": "Worn valve seal",
	"solution": "Replace the seal and torque the housing to spec.",
	"partsRequired": ["P-445"],
	"estimatedRepairTime": "2 hours",
	"difficulty": "medium",
	"references": ["service manual"]
}`

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Synthesis: config.Synthesis{MaxTokens: 1024},
		Search:    config.Search{MaxConcurrent: 4, TimeoutSeconds: 5, RequestsPerSecond: 100, TopResults: 20},
		Context:   config.Context{PerDocumentCap: 3000, TotalBudget: 12000},
		Retrieval: config.Retrieval{Limit: 5},
	}
}

func testPipeline(t *testing.T, db *database.DB, provider llm.Provider) *Pipeline {
	t.Helper()
	return NewWithProvider(testConfig(), db, provider)
}

func diagRequest(accountID int64) *synth.Request {
	return &synth.Request{
		AccountID:        accountID,
		DeviceType:       "Ventilator",
		Manufacturer:     "Acme",
		Model:            "V200",
		FaultDescription: "Pump leaking fluid from valve",
		Save:             true,
	}
}

func TestDiagnoseEndToEnd(t *testing.T) {
	db := openTestDB(t)
	account, _ := db.InsertAccount("tech", "user", 3)

	// A prior fault that shares description tokens with the request.
	priorID, _ := db.InsertFault(&database.FaultRecord{
		DeviceType: "Ventilator", Manufacturer: "Acme", Model: "V100",
		FaultDescription: "Pump leaking around the gasket",
		RootCause:        "gasket wear", Solution: "Replace gasket",
		Difficulty: "easy", Provenance: "admin-entered",
	})

	p := testPipeline(t, db, &mockProvider{response: validResponse})
	resp, err := p.Diagnose(context.Background(), diagRequest(account))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Diagnosis.RootCause != "Worn valve seal" {
		t.Errorf("unexpected diagnosis %+v", resp.Diagnosis)
	}
	if len(resp.RelatedFaults) != 1 || resp.RelatedFaults[0].ID != priorID {
		t.Errorf("expected prior fault related, got %v", resp.RelatedFaults)
	}
	if resp.RelatedFaults[0].SimilarityScore <= 0 {
		t.Error("expected positive similarity score")
	}
	if resp.FaultID == nil {
		t.Fatal("expected saved fault ID")
	}

	saved, _ := db.GetFaultByID(*resp.FaultID)
	if saved.Provenance != "ai-synthesized" {
		t.Errorf("expected ai-synthesized provenance, got %q", saved.Provenance)
	}
	if len(saved.PartsRequired) != 1 || saved.PartsRequired[0] != "P-445" {
		t.Errorf("expected parts [P-445], got %v", saved.PartsRequired)
	}

	// New record linked to the related prior fault.
	links, _ := db.GetLinkedFaultIDs(*resp.FaultID)
	if len(links) != 1 || links[0] != priorID {
		t.Errorf("expected link to prior fault, got %v", links)
	}

	// Quota spent exactly once.
	a, _ := db.GetAccount(account)
	if a.Balance != 2 {
		t.Errorf("expected balance 2 after one request, got %d", a.Balance)
	}

	// Exactly one audit row, marked as a non-search request.
	history, _ := db.GetQueryHistory(account, 10)
	if len(history) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(history))
	}
	if history[0].SearchPerformed {
		t.Error("expected search_performed false for diagnosis")
	}
	if history[0].Cost != 1 {
		t.Errorf("expected cost 1, got %d", history[0].Cost)
	}
}

func TestDiagnoseEmptyKnowledgeBase(t *testing.T) {
	db := openTestDB(t)
	account, _ := db.InsertAccount("tech", "user", 3)

	stub := `{
		"rootCause": "Faulty pressure sensor",
		"solution": "Replace sensor P-445",
		"partsRequired": ["P-445"],
		"estimatedRepairTime": "1 hour",
		"difficulty": "medium",
		"references": []
	}`
	p := testPipeline(t, db, &mockProvider{response: stub})

	resp, err := p.Diagnose(context.Background(), &synth.Request{
		AccountID:        account,
		DeviceType:       "Ventilator",
		Manufacturer:     "Acme",
		Model:            "V200",
		FaultDescription: "Alarm E04 on startup, fails to initialize",
		Save:             true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.RelatedFaults) != 0 {
		t.Errorf("expected no related faults on empty knowledge base, got %v", resp.RelatedFaults)
	}
	if resp.FaultID == nil {
		t.Fatal("expected persisted fault")
	}

	saved, _ := db.GetFaultByID(*resp.FaultID)
	if len(saved.PartsRequired) != 1 || saved.PartsRequired[0] != "P-445" {
		t.Errorf("expected parts [P-445] after round-trip, got %v", saved.PartsRequired)
	}
	history, _ := db.GetQueryHistory(account, 10)
	if len(history) != 1 || history[0].SearchPerformed {
		t.Error("expected one history row with search_performed false")
	}
}

func TestDiagnoseWithoutSave(t *testing.T) {
	db := openTestDB(t)
	account, _ := db.InsertAccount("tech", "user", 3)

	p := testPipeline(t, db, &mockProvider{response: validResponse})
	req := diagRequest(account)
	req.Save = false

	resp, err := p.Diagnose(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.FaultID != nil {
		t.Error("expected nil fault ID when not saving")
	}

	stats, _ := db.GetStats()
	if stats.TotalFaults != 0 {
		t.Error("expected nothing persisted")
	}
	// The request still costs one query and one history row.
	a, _ := db.GetAccount(account)
	if a.Balance != 2 {
		t.Errorf("expected balance 2, got %d", a.Balance)
	}
}

func TestDiagnoseInvalidInput(t *testing.T) {
	db := openTestDB(t)
	account, _ := db.InsertAccount("tech", "user", 3)

	mock := &mockProvider{response: validResponse}
	p := testPipeline(t, db, mock)

	req := diagRequest(account)
	req.FaultDescription = "   "
	_, err := p.Diagnose(context.Background(), req)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if mock.calls != 0 {
		t.Error("expected no provider call for invalid input")
	}
	a, _ := db.GetAccount(account)
	if a.Balance != 3 {
		t.Error("expected no quota spent on invalid input")
	}
}

func TestDiagnoseQuotaExceededFailsFast(t *testing.T) {
	db := openTestDB(t)
	account, _ := db.InsertAccount("tech", "user", 0)

	mock := &mockProvider{response: validResponse}
	p := testPipeline(t, db, mock)

	_, err := p.Diagnose(context.Background(), diagRequest(account))
	if !errors.Is(err, quota.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if mock.calls != 0 {
		t.Error("expected no provider call when quota exhausted")
	}

	history, _ := db.GetQueryHistory(account, 10)
	if len(history) != 0 {
		t.Error("expected no history row for rejected request")
	}
}

func TestDiagnoseUnknownAccount(t *testing.T) {
	db := openTestDB(t)
	p := testPipeline(t, db, &mockProvider{response: validResponse})

	_, err := p.Diagnose(context.Background(), diagRequest(999))
	if !errors.Is(err, quota.ErrUnknownAccount) {
		t.Errorf("expected ErrUnknownAccount, got %v", err)
	}
}

func TestDiagnoseSynthesisFailureSpendsNothing(t *testing.T) {
	db := openTestDB(t)
	account, _ := db.InsertAccount("tech", "user", 3)

	p := testPipeline(t, db, &mockProvider{response: "not json at all"})
	_, err := p.Diagnose(context.Background(), diagRequest(account))
	if !errors.Is(err, synth.ErrSynthesisFailed) {
		t.Fatalf("expected ErrSynthesisFailed, got %v", err)
	}

	a, _ := db.GetAccount(account)
	if a.Balance != 3 {
		t.Errorf("expected balance untouched on failure, got %d", a.Balance)
	}
	history, _ := db.GetQueryHistory(account, 10)
	if len(history) != 0 {
		t.Error("expected no history row for failed request")
	}
	stats, _ := db.GetStats()
	if stats.TotalFaults != 0 {
		t.Error("expected nothing persisted on failure")
	}
}

func TestDiagnoseReportsOmittedDocuments(t *testing.T) {
	db := openTestDB(t)
	account, _ := db.InsertAccount("tech", "user", 3)
	other, _ := db.InsertAccount("other", "user", 3)
	foreign, _ := db.InsertDocument(other, "private.txt", "Not yours.")

	p := testPipeline(t, db, &mockProvider{response: validResponse})
	req := diagRequest(account)
	req.DocumentIDs = []int64{foreign}
	req.Save = false

	resp, err := p.Diagnose(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.OmittedDocumentIDs) != 1 || resp.OmittedDocumentIDs[0] != foreign {
		t.Errorf("expected foreign document flagged omitted, got %v", resp.OmittedDocumentIDs)
	}
}

func TestSearchEndToEnd(t *testing.T) {
	db := openTestDB(t)
	account, _ := db.InsertAccount("tech", "user", 3)

	page := "<html><head><title>Pump repair</title></head><body><article>" +
		strings.Repeat("Pump leaking from the valve is a common fault. ", 10) +
		"Replace the worn seal kit. Order spare part P-445 from the depot." +
		"</article></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	db.InsertSource("Repair Wiki", srv.URL, "website", false)

	p := testPipeline(t, db, &mockProvider{})
	resp, err := p.Search(context.Background(), account, "pump leaking valve", true, "Ventilator", "Acme", "V200")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	if resp.Results[0].RelevanceScore != 1.0 {
		t.Errorf("expected full token overlap, got %f", resp.Results[0].RelevanceScore)
	}
	if len(resp.SavedFaultIDs) != 1 {
		t.Fatalf("expected 1 promoted fault, got %v", resp.SavedFaultIDs)
	}

	saved, _ := db.GetFaultByID(resp.SavedFaultIDs[0])
	if saved.Provenance != "web-discovered" {
		t.Errorf("expected web-discovered provenance, got %q", saved.Provenance)
	}
	if saved.DeviceType != "Ventilator" {
		t.Errorf("expected device scope carried, got %q", saved.DeviceType)
	}

	history, _ := db.GetQueryHistory(account, 10)
	if len(history) != 1 || !history[0].SearchPerformed {
		t.Error("expected one history row with search_performed true")
	}
	a, _ := db.GetAccount(account)
	if a.Balance != 2 {
		t.Errorf("expected one query spent, got balance %d", a.Balance)
	}
}

func TestSearchWithoutSavePersistsNothing(t *testing.T) {
	db := openTestDB(t)
	account, _ := db.InsertAccount("tech", "user", 3)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><article>"+
			strings.Repeat("Replace the pump seal when leaking. ", 15)+
			"</article></body></html>")
	}))
	defer srv.Close()
	db.InsertSource("Repair Wiki", srv.URL, "website", false)

	p := testPipeline(t, db, &mockProvider{})
	resp, err := p.Search(context.Background(), account, "pump leaking", false, "", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	if len(resp.SavedFaultIDs) != 0 {
		t.Error("expected no promotion without save")
	}
	stats, _ := db.GetStats()
	if stats.TotalFaults != 0 {
		t.Error("searching must never persist as a side effect")
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	db := openTestDB(t)
	account, _ := db.InsertAccount("tech", "user", 3)

	p := testPipeline(t, db, &mockProvider{})
	_, err := p.Search(context.Background(), account, "  ", false, "", "", "")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSearchQuotaExceeded(t *testing.T) {
	db := openTestDB(t)
	account, _ := db.InsertAccount("tech", "user", 0)

	p := testPipeline(t, db, &mockProvider{})
	_, err := p.Search(context.Background(), account, "pump leaking", false, "", "", "")
	if !errors.Is(err, quota.ErrQuotaExceeded) {
		t.Errorf("expected ErrQuotaExceeded, got %v", err)
	}
}
