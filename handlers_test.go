package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"slipbook/models"
	"slipbook/pkg/ledger"
	"slipbook/pkg/ocr"
	"slipbook/pkg/receipt"
	"slipbook/pkg/scan"
	"slipbook/pkg/storage"
)

var testSecret = []byte("test-secret")

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// fakeLedger is an in-memory transactionStore with the same ownership rules.
type fakeLedger struct {
	items  map[uint]models.Transaction
	nextID uint
	err    error
}

func newFakeLedger() *fakeLedger { return &fakeLedger{items: map[uint]models.Transaction{}} }

func (f *fakeLedger) List(_ context.Context, o ledger.Owner, flt ledger.Filter) ([]models.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Transaction
	for _, t := range f.items {
		if !o.Admin && t.UserID != o.UserID {
			continue
		}
		if !flt.From.IsZero() && t.Date.Before(flt.From) {
			continue
		}
		if !flt.To.IsZero() && !t.Date.Before(flt.To) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeLedger) Create(_ context.Context, o ledger.Owner, in ledger.Input) (models.Transaction, error) {
	tx := models.Transaction{UserID: o.UserID}
	if err := in.Apply(&tx, time.Now()); err != nil {
		return tx, err
	}
	f.nextID++
	tx.ID = f.nextID
	f.items[tx.ID] = tx
	return tx, nil
}

func (f *fakeLedger) load(o ledger.Owner, id uint) (models.Transaction, error) {
	tx, ok := f.items[id]
	if !ok {
		return tx, ledger.ErrNotFound
	}
	if tx.UserID != o.UserID {
		return tx, ledger.ErrForbidden
	}
	return tx, nil
}

func (f *fakeLedger) Update(_ context.Context, o ledger.Owner, id uint, in ledger.Input) (models.Transaction, error) {
	tx, err := f.load(o, id)
	if err != nil {
		return tx, err
	}
	if err := in.Apply(&tx, tx.Date); err != nil {
		return tx, err
	}
	f.items[id] = tx
	return tx, nil
}

func (f *fakeLedger) Delete(_ context.Context, o ledger.Owner, id uint) error {
	if _, err := f.load(o, id); err != nil {
		return err
	}
	delete(f.items, id)
	return nil
}

type fakeUploads struct {
	rows []models.ReceiptUpload
}

func (f *fakeUploads) RecordUpload(_ context.Context, u *models.ReceiptUpload) error {
	u.ID = uint(len(f.rows) + 1)
	f.rows = append(f.rows, *u)
	return nil
}

type testEnv struct {
	router  *gin.Engine
	ledger  *fakeLedger
	uploads *fakeUploads
	drafts  []scan.TransactionDraft
	ocrText string
	ocrErr  error
	failNew bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := &testEnv{ledger: newFakeLedger(), uploads: &fakeUploads{}}
	archive, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	recognizer := ocr.RecognizerFunc(func(context.Context, ocr.Image) (string, error) {
		return env.ocrText, env.ocrErr
	})
	srv := &server{
		jwtSecret: testSecret,
		ledger:    env.ledger,
		parser:    receipt.NewParser(recognizer, zerolog.Nop()),
		creatorFor: func(uid uint) scan.TransactionCreator {
			return scan.CreatorFunc(func(ctx context.Context, d scan.TransactionDraft) (scan.CreatedTransaction, error) {
				env.drafts = append(env.drafts, d)
				if env.failNew {
					return scan.CreatedTransaction{}, errors.New("db down")
				}
				return scan.CreatedTransaction{ID: 99, TransactionDraft: d}, nil
			})
		},
		archive: archive,
		uploads: env.uploads,
		loc:     time.UTC,
		log:     zerolog.Nop(),
	}
	env.router = gin.New()
	env.router.Use(requestLogger(zerolog.Nop()))
	srv.routes(env.router)
	return env
}

func tokenFor(t *testing.T, id uint, role string) string {
	t.Helper()
	tok, err := issueAccessToken(testSecret, models.User{ID: id, Username: "u", Role: models.Role{Name: role}}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func jsonBody(v any) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func TestCategories(t *testing.T) {
	env := newTestEnv(t)
	resp := performRequest(env.router, http.MethodGet, "/categories", nil, "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status %d", resp.Code)
	}
	var cats []string
	_ = json.Unmarshal(resp.Body.Bytes(), &cats)
	if len(cats) != len(models.Categories) || cats[6] != "สลิป" {
		t.Fatalf("unexpected categories %v", cats)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/transactions", "/dashboard", "/calendar", "/me"} {
		if resp := performRequest(env.router, http.MethodGet, path, nil, "", ""); resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, resp.Code)
		}
	}
	bad, _ := issueAccessToken([]byte("other"), models.User{ID: 1}, time.Hour)
	if resp := performRequest(env.router, http.MethodGet, "/transactions", nil, bad, ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign signature got %d", resp.Code)
	}
}

func TestTransactionCRUD(t *testing.T) {
	env := newTestEnv(t)
	alice := tokenFor(t, 1, "user")
	bob := tokenFor(t, 2, "user")

	resp := performRequest(env.router, http.MethodPost, "/transactions",
		jsonBody(map[string]any{"type": "expense", "amount": 120.5, "category": "Food", "date": "2024-05-02"}), alice, "application/json")
	if resp.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", resp.Code, resp.Body.String())
	}
	var created models.Transaction
	_ = json.Unmarshal(resp.Body.Bytes(), &created)

	resp = performRequest(env.router, http.MethodPost, "/transactions",
		jsonBody(map[string]any{"type": "gift", "amount": 1, "category": "Food"}), alice, "application/json")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("invalid type: expected 400 got %d", resp.Code)
	}

	resp = performRequest(env.router, http.MethodPut, "/transactions/1",
		jsonBody(map[string]any{"type": "expense", "amount": 99, "category": "Food"}), bob, "application/json")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("non-owner update: expected 403 got %d", resp.Code)
	}

	resp = performRequest(env.router, http.MethodPut, "/transactions/1",
		jsonBody(map[string]any{"type": "expense", "amount": 99, "category": "Transport"}), alice, "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("owner update: %d %s", resp.Code, resp.Body.String())
	}
	if env.ledger.items[created.ID].Date.Format(time.DateOnly) != "2024-05-02" {
		t.Fatal("update without date must keep the original date")
	}

	resp = performRequest(env.router, http.MethodGet, "/transactions", nil, bob, "")
	var bobItems []models.Transaction
	_ = json.Unmarshal(resp.Body.Bytes(), &bobItems)
	if len(bobItems) != 0 {
		t.Fatalf("bob should see nothing, got %d", len(bobItems))
	}

	admin := tokenFor(t, 3, "administrator")
	resp = performRequest(env.router, http.MethodGet, "/transactions", nil, admin, "")
	var all []models.Transaction
	_ = json.Unmarshal(resp.Body.Bytes(), &all)
	if len(all) != 1 {
		t.Fatalf("admin should see all, got %d", len(all))
	}

	if resp = performRequest(env.router, http.MethodDelete, "/transactions/42", nil, alice, ""); resp.Code != http.StatusNotFound {
		t.Fatalf("missing delete: expected 404 got %d", resp.Code)
	}
	if resp = performRequest(env.router, http.MethodDelete, "/transactions/abc", nil, alice, ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400 got %d", resp.Code)
	}
	if resp = performRequest(env.router, http.MethodDelete, "/transactions/1", nil, alice, ""); resp.Code != http.StatusOK {
		t.Fatalf("delete: %d", resp.Code)
	}
}

func TestDashboardAndCalendar(t *testing.T) {
	env := newTestEnv(t)
	tok := tokenFor(t, 1, "user")
	for _, in := range []map[string]any{
		{"type": "income", "amount": 1000, "category": "Salary", "date": "2024-05-01"},
		{"type": "expense", "amount": 200, "category": "Food", "date": "2024-05-01"},
		{"type": "expense", "amount": 50, "category": "Transport", "date": "2024-05-20"},
		{"type": "expense", "amount": 70, "category": "Food", "date": "2024-06-01"},
	} {
		if resp := performRequest(env.router, http.MethodPost, "/transactions", jsonBody(in), tok, "application/json"); resp.Code != http.StatusCreated {
			t.Fatalf("seed: %d", resp.Code)
		}
	}

	resp := performRequest(env.router, http.MethodGet, "/dashboard", nil, tok, "")
	var sum ledger.Summary
	_ = json.Unmarshal(resp.Body.Bytes(), &sum)
	if sum.Income != 1000 || sum.Expense != 320 || sum.Balance != 680 || sum.Count != 4 {
		t.Fatalf("dashboard %+v", sum)
	}

	resp = performRequest(env.router, http.MethodGet, "/calendar?month=2024-05", nil, tok, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("calendar: %d", resp.Code)
	}
	var cal struct {
		Month string       `json:"month"`
		Days  []ledger.Day `json:"days"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &cal)
	if cal.Month != "2024-05" || len(cal.Days) != 2 || cal.Days[0].Date != "2024-05-01" || cal.Days[0].Expense != 200 {
		t.Fatalf("calendar %+v", cal)
	}

	resp = performRequest(env.router, http.MethodGet, "/calendar?month=1999-01", nil, tok, "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"days":[]`) {
		t.Fatalf("empty month should render an empty days list: %d %s", resp.Code, resp.Body.String())
	}

	if resp = performRequest(env.router, http.MethodGet, "/calendar?month=May", nil, tok, ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("bad month: expected 400 got %d", resp.Code)
	}
}

func slipRequest(t *testing.T) (io.Reader, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	w, _ := mw.CreateFormFile("image", "slip.png")
	_, _ = w.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	_ = mw.Close()
	return buf, mw.FormDataContentType()
}

func TestScanEndpoint(t *testing.T) {
	cases := []struct {
		name       string
		text       string
		ocrErr     error
		failNew    bool
		wantStatus int
		wantDrafts int
		wantSev    scan.Severity
	}{
		{"success", "ยอดเงิน 500.00 บาท ไปยัง นางสาว สมหญิง รักดี", nil, false, http.StatusCreated, 1, scan.SeveritySuccess},
		{"no amount", "Thank you for your purchase", nil, false, http.StatusUnprocessableEntity, 0, scan.SeverityWarning},
		{"recognition error", "", &ocr.RecognitionError{Engine: "func", Err: errors.New("crash")}, false, http.StatusBadGateway, 0, scan.SeverityError},
		{"create error", "500.00", nil, true, http.StatusInternalServerError, 1, scan.SeverityError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.ocrText, env.ocrErr, env.failNew = c.text, c.ocrErr, c.failNew
			body, ct := slipRequest(t)
			resp := performRequest(env.router, http.MethodPost, "/transactions/scan", body, tokenFor(t, 1, "user"), ct)
			if resp.Code != c.wantStatus {
				t.Fatalf("status %d body=%s", resp.Code, resp.Body.String())
			}
			if len(env.drafts) != c.wantDrafts {
				t.Fatalf("expected %d create calls got %d", c.wantDrafts, len(env.drafts))
			}
			var out struct {
				Severity     scan.Severity     `json:"severity"`
				Notification scan.Notification `json:"notification"`
			}
			_ = json.Unmarshal(resp.Body.Bytes(), &out)
			if out.Severity != c.wantSev || out.Notification.Severity != c.wantSev {
				t.Fatalf("severity %+v", out)
			}
			if len(env.uploads.rows) != 1 {
				t.Fatalf("expected one upload row, got %d", len(env.uploads.rows))
			}
			row := env.uploads.rows[0]
			if row.StorePath == "" || row.Failed == (c.wantSev == scan.SeveritySuccess) {
				t.Fatalf("upload row %+v", row)
			}
		})
	}
}

func TestScanSuccessDraft(t *testing.T) {
	env := newTestEnv(t)
	env.ocrText = "ยอดเงิน 500.00 บาท ไปยัง นางสาว สมหญิง รักดี"
	body, ct := slipRequest(t)
	performRequest(env.router, http.MethodPost, "/transactions/scan", body, tokenFor(t, 1, "user"), ct)
	if len(env.drafts) != 1 {
		t.Fatalf("expected one draft")
	}
	d := env.drafts[0]
	if d.Type != "expense" || d.Amount != 500 || d.Category != "สลิป" || d.Description != "นางสาว สมหญิง รักดี" {
		t.Fatalf("unexpected draft %+v", d)
	}
	if id := env.uploads.rows[0].TransactionID; id == nil || *id != 99 {
		t.Fatalf("upload not linked to transaction: %v", id)
	}
}

func TestScanRequiresImage(t *testing.T) {
	env := newTestEnv(t)
	resp := performRequest(env.router, http.MethodPost, "/transactions/scan", nil, tokenFor(t, 1, "user"), "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
