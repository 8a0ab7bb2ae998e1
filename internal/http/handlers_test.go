package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"messbook/internal/auth"
	"messbook/internal/core"
	"messbook/internal/ledger"
	"messbook/internal/storage"
)

type staticInsights struct {
	calls int
}

func (f *staticInsights) SummaryInsight(_ context.Context, _ core.Summary, _ string) string {
	f.calls++
	return "keep an eye on the market bill"
}

type testEnv struct {
	server   *httptest.Server
	insights *staticInsights
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "messbook.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	svc := ledger.NewService(repo, nil, "breakfast")
	authn := auth.NewPasswordAuthenticator(repo)
	tokens := auth.NewJWTManager("test-secret", time.Hour)
	insights := &staticInsights{}

	s := NewServer(":0", svc, authn, tokens, repo, insights, "BDT")
	ts := httptest.NewServer(s.Server.Handler)
	t.Cleanup(ts.Close)
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	return &testEnv{server: ts, insights: insights}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var api APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil && resp.StatusCode != http.StatusNoContent {
		t.Fatalf("%s %s: decode response: %v", method, path, err)
	}
	return resp, api
}

func decodeData[T any](t *testing.T, api APIResponse) T {
	t.Helper()
	raw, err := json.Marshal(api.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return out
}

func register(t *testing.T, e *testEnv, phone string) string {
	t.Helper()
	resp, api := e.do(t, http.MethodPost, "/api/register", "", registerRequest{
		Phone: phone, Name: "Tester", Password: "supersecret",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", resp.StatusCode)
	}
	return decodeData[authResponse](t, api).Token
}

func TestRegisterAndLogin(t *testing.T) {
	e := newTestEnv(t)

	token := register(t, e, "+8801711111111")
	if token == "" {
		t.Fatal("no token issued on register")
	}

	resp, _ := e.do(t, http.MethodPost, "/api/register", "", registerRequest{
		Phone: "+8801711111111", Name: "Again", Password: "supersecret",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register: status %d, want 409", resp.StatusCode)
	}

	resp, api := e.do(t, http.MethodPost, "/api/login", "", loginRequest{
		Phone: "+8801711111111", Password: "supersecret",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	if decodeData[authResponse](t, api).Token == "" {
		t.Error("no token issued on login")
	}

	resp, _ = e.do(t, http.MethodPost, "/api/login", "", loginRequest{
		Phone: "+8801711111111", Password: "wrongwrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password: status %d, want 401", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.do(t, http.MethodGet, "/api/members", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", resp.StatusCode)
	}

	resp, _ = e.do(t, http.MethodGet, "/api/members", "garbage-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token: status %d, want 401", resp.StatusCode)
	}
}

func TestMemberLifecycle(t *testing.T) {
	e := newTestEnv(t)
	token := register(t, e, "+8801722222222")

	resp, api := e.do(t, http.MethodPost, "/api/members", token, createMemberRequest{
		Name: "Asif", JoinDate: "2025-04-01",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create member: status %d", resp.StatusCode)
	}
	m := decodeData[memberResponse](t, api)
	if !m.Active {
		t.Error("new member should be active")
	}

	resp, _ = e.do(t, http.MethodPost, "/api/members", token, createMemberRequest{
		Name: "  ", JoinDate: "2025-04-01",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("blank name: status %d, want 422", resp.StatusCode)
	}

	path := fmt.Sprintf("/api/members/%s/leave", m.ID)
	resp, _ = e.do(t, http.MethodPost, path, token, memberDateRequest{Date: "2025-04-10"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("leave: status %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPost, path, token, memberDateRequest{Date: "2025-04-11"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second leave: status %d, want 409", resp.StatusCode)
	}

	path = fmt.Sprintf("/api/members/%s/rejoin", m.ID)
	resp, _ = e.do(t, http.MethodPost, path, token, memberDateRequest{Date: "2025-04-20"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rejoin: status %d", resp.StatusCode)
	}

	resp, api = e.do(t, http.MethodGet, "/api/members", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list members: status %d", resp.StatusCode)
	}
	members := decodeData[[]memberResponse](t, api)
	if len(members) != 1 || len(members[0].Periods) != 2 {
		t.Fatalf("got %+v, want one member with two periods", members)
	}

	resp, _ = e.do(t, http.MethodDelete, "/api/members/"+m.ID, token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete member: status %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodDelete, "/api/members/"+m.ID, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("double delete: status %d, want 404", resp.StatusCode)
	}
}

func TestTransactionsAndSummary(t *testing.T) {
	e := newTestEnv(t)
	token := register(t, e, "+8801733333333")

	_, api := e.do(t, http.MethodPost, "/api/members", token, createMemberRequest{
		Name: "Asif", JoinDate: "2025-04-01",
	})
	asif := decodeData[memberResponse](t, api)
	_, api = e.do(t, http.MethodPost, "/api/members", token, createMemberRequest{
		Name: "Babu", JoinDate: "2025-04-01",
	})
	babu := decodeData[memberResponse](t, api)

	for _, req := range []createTransactionRequest{
		{Description: "weekly market", Amount: 100, Kind: "shared", Date: "2025-04-05"},
		{Description: "shampoo", Amount: 30, Kind: "personal", TargetMemberID: asif.ID, Date: "2025-04-06"},
		{Description: "deposit", Amount: 50, Kind: "payment", TargetMemberID: babu.ID, Date: "2025-04-07"},
		{Description: "breakfast deposit", Amount: 20, Kind: "payment", TargetMemberID: asif.ID, Date: "2025-04-08"},
	} {
		resp, _ := e.do(t, http.MethodPost, "/api/transactions", token, req)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create transaction %q: status %d", req.Description, resp.StatusCode)
		}
	}

	resp, _ := e.do(t, http.MethodPost, "/api/transactions", token, createTransactionRequest{
		Description: "soap", Amount: 10, Kind: "personal", TargetMemberID: "ghost", Date: "2025-04-09",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("unknown target: status %d, want 422", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPost, "/api/transactions", token, createTransactionRequest{
		Description: "free", Amount: 0, Kind: "shared", Date: "2025-04-09",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("zero amount: status %d, want 422", resp.StatusCode)
	}

	resp, api = e.do(t, http.MethodGet, "/api/transactions", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list transactions: status %d", resp.StatusCode)
	}
	transactions := decodeData[[]transactionResponse](t, api)
	if len(transactions) != 4 {
		t.Fatalf("got %d transactions, want 4", len(transactions))
	}
	for _, tx := range transactions {
		if tx.Description == "shampoo" {
			if tx.TargetName != "Asif" {
				t.Errorf("shampoo target name = %q, want Asif", tx.TargetName)
			}
			if tx.AmountDisplay != "Tk 30.00" {
				t.Errorf("shampoo display = %q", tx.AmountDisplay)
			}
		}
	}

	resp, api = e.do(t, http.MethodGet, "/api/summary", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary: status %d", resp.StatusCode)
	}
	sum := decodeData[summaryResponse](t, api)
	if sum.TotalSharedExpense != 100 || sum.TotalPersonalExpense != 30 {
		t.Errorf("totals = %v shared / %v personal", sum.TotalSharedExpense, sum.TotalPersonalExpense)
	}
	if sum.TotalPaid != 50 || sum.TotalBreakfastPaid != 20 {
		t.Errorf("paid = %v plain / %v breakfast", sum.TotalPaid, sum.TotalBreakfastPaid)
	}
	if sum.GrandTotalDebt != 80 {
		t.Errorf("grand total debt = %v, want 80", sum.GrandTotalDebt)
	}
	if sum.GrandTotalDisplay != "Tk 80.00" {
		t.Errorf("grand total display = %q", sum.GrandTotalDisplay)
	}
	if len(sum.MemberBalances) != 2 {
		t.Fatalf("got %d member balances", len(sum.MemberBalances))
	}
	for _, mb := range sum.MemberBalances {
		if mb.MemberID == asif.ID {
			if mb.TotalCost != 80 {
				t.Errorf("Asif total cost = %v, want 80", mb.TotalCost)
			}
			if !mb.Owes {
				t.Error("Asif should owe money")
			}
		}
	}
}

func TestDeleteTransaction(t *testing.T) {
	e := newTestEnv(t)
	token := register(t, e, "+8801744444444")

	_, _ = e.do(t, http.MethodPost, "/api/members", token, createMemberRequest{
		Name: "Asif", JoinDate: "2025-04-01",
	})
	_, api := e.do(t, http.MethodPost, "/api/transactions", token, createTransactionRequest{
		Description: "weekly market", Amount: 100, Kind: "shared", Date: "2025-04-05",
	})
	tx := decodeData[transactionResponse](t, api)

	resp, _ := e.do(t, http.MethodDelete, "/api/transactions/"+tx.ID, token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete transaction: status %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodDelete, "/api/transactions/"+tx.ID, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("double delete: status %d, want 404", resp.StatusCode)
	}
}

func TestInsightGeneratedOnDemandThenCached(t *testing.T) {
	e := newTestEnv(t)
	token := register(t, e, "+8801755555555")

	resp, api := e.do(t, http.MethodGet, "/api/insight", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("insight: status %d", resp.StatusCode)
	}
	got := decodeData[insightResponse](t, api)
	if got.Insight != "keep an eye on the market bill" {
		t.Errorf("insight = %q", got.Insight)
	}
	if e.insights.calls != 1 {
		t.Fatalf("generator called %d times, want 1", e.insights.calls)
	}

	if _, _ = e.do(t, http.MethodGet, "/api/insight", token, nil); e.insights.calls != 1 {
		t.Errorf("second request hit the generator, want cache")
	}
}
