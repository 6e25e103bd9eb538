package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"cagnotte/internal/amqp"
	"cagnotte/internal/core"
	"cagnotte/internal/session"
)

type fakePublisher struct {
	mu   sync.Mutex
	jobs []*amqp.ExportJob
	err  error
}

func (f *fakePublisher) PublishExportJob(_ context.Context, job *amqp.ExportJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func newTestServer(t *testing.T, pub ExportPublisher, ready func(context.Context) error) *Server {
	t.Helper()
	store := session.NewMemoryStore(100, time.Hour)
	deps := Deps{
		Sessions:           session.NewManager(store, nil),
		Ready:              ready,
		RateLimitPerMinute: 1000,
	}
	if pub != nil {
		deps.Publisher = pub
	}
	srv, err := NewServer(":0", deps)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

// browser keeps the session cookie between requests like a real client.
type browser struct {
	t      *testing.T
	h      http.Handler
	cookie *http.Cookie
}

func (b *browser) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	rr := httptest.NewRecorder()
	b.h.ServeHTTP(rr, req)
	for _, c := range rr.Result().Cookies() {
		if c.Name == session.CookieName {
			b.cookie = c
		}
	}
	return rr
}

func (b *browser) open() {
	b.t.Helper()
	rr := b.do(http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK {
		b.t.Fatalf("GET / status=%d", rr.Code)
	}
	if b.cookie == nil {
		b.t.Fatal("GET / did not set the session cookie")
	}
}

func (b *browser) configure(budget string) *httptest.ResponseRecorder {
	return b.do(http.MethodPost, "/budget", url.Values{"budget": {budget}})
}

func (b *browser) add(nom, prenom, tel, montant string) *httptest.ResponseRecorder {
	return b.do(http.MethodPost, "/contributions", url.Values{
		"nom": {nom}, "prenom": {prenom}, "telephone": {tel}, "montant": {montant},
	})
}

// notification returns the message of the show-notification trigger.
func notification(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var triggers map[string]map[string]interface{}
	if err := json.Unmarshal([]byte(rr.Header().Get("HX-Trigger")), &triggers); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	msg, _ := triggers["show-notification"]["message"].(string)
	return msg
}

var deleteTarget = regexp.MustCompile(`hx-delete="/contributions/([^"]+)"`)

func contributionIDs(body string) []string {
	var ids []string
	for _, m := range deleteTarget.FindAllStringSubmatch(body, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

func TestIndexStartsConfiguringSession(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	b := &browser{t: t, h: srv.Handler}

	rr := b.do(http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Configuration du Budget", `value="5000"`, "Configurer le Budget"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
	if b.cookie == nil || !b.cookie.HttpOnly {
		t.Fatalf("session cookie = %+v", b.cookie)
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}
}

func TestLedgerScenario(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	b := &browser{t: t, h: srv.Handler}
	b.open()

	rr := b.configure("100.00")
	if rr.Code != http.StatusOK {
		t.Fatalf("configure status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "sur 100.00 €") || !strings.Contains(rr.Body.String(), "Aucune contribution pour le moment") {
		t.Fatalf("ledger not rendered: %s", rr.Body.String())
	}

	rr = b.add("Dupont", "Jean", "0612345678", "30.00")
	if rr.Code != http.StatusOK {
		t.Fatalf("add status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{`<span id="remaining">70.00 €</span>`, "Jean Dupont", "06 12 34 56 78", "30.00 €"} {
		if !strings.Contains(body, want) {
			t.Errorf("after add, body missing %q", want)
		}
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "form:reset") {
		t.Errorf("HX-Trigger = %s", rr.Header().Get("HX-Trigger"))
	}
	ids := contributionIDs(body)
	if len(ids) != 1 {
		t.Fatalf("contribution ids = %v", ids)
	}

	rr = b.add("Martin", "Alice", "0711223344", "80.00")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("over budget status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), core.MsgExceedsRemaining) {
		t.Errorf("body = %s", rr.Body.String())
	}
	if got := notification(t, rr); got != core.MsgExceedsRemaining {
		t.Errorf("alert message = %q", got)
	}

	// Without confirmation nothing is removed.
	rr = b.do(http.MethodDelete, "/contributions/"+ids[0], nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Jean Dupont") {
		t.Fatalf("declined delete: status=%d", rr.Code)
	}

	rr = b.do(http.MethodDelete, "/contributions/"+ids[0]+"?confirmed=true", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
	body = rr.Body.String()
	if strings.Contains(body, "Jean Dupont") || !strings.Contains(body, `<span id="remaining">100.00 €</span>`) {
		t.Fatalf("delete did not restore budget: %s", body)
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "ledger:changed") {
		t.Errorf("HX-Trigger = %s", rr.Header().Get("HX-Trigger"))
	}
}

func TestNewestContributionFirst(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	b := &browser{t: t, h: srv.Handler}
	b.open()
	b.configure("100")
	b.add("Dupont", "Jean", "0612345678", "10")
	rr := b.add("Martin", "Alice", "0711223344", "20")

	body := rr.Body.String()
	if strings.Index(body, "Alice Martin") > strings.Index(body, "Jean Dupont") {
		t.Fatal("newest contribution is not listed first")
	}
}

func TestDeleteViaPOSTFallback(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	b := &browser{t: t, h: srv.Handler}
	b.open()
	b.configure("100")
	ids := contributionIDs(b.add("Dupont", "Jean", "0612345678", "10").Body.String())

	rr := b.do(http.MethodPost, "/contributions/"+ids[0], url.Values{"confirmed": {"true"}})
	if rr.Code != http.StatusOK || strings.Contains(rr.Body.String(), "Jean Dupont") {
		t.Fatalf("POST delete status=%d", rr.Code)
	}

	rr = b.do(http.MethodDelete, "/contributions/unknown?confirmed=true", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unknown id status=%d", rr.Code)
	}
}

func TestConfigureRejectsInvalidBudget(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	b := &browser{t: t, h: srv.Handler}
	b.open()

	for _, budget := range []string{"0", "-5", "abc", ""} {
		rr := b.configure(budget)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("budget %q: status=%d", budget, rr.Code)
		}
		if got := notification(t, rr); got != core.MsgNonPositiveBudget {
			t.Errorf("budget %q: alert message = %q", budget, got)
		}
	}

	if rr := b.configure("50"); rr.Code != http.StatusOK {
		t.Fatalf("valid budget status=%d", rr.Code)
	}
	if rr := b.configure("60"); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("reconfigure status=%d", rr.Code)
	}
}

func TestAddBeforeConfigureIsRejected(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	b := &browser{t: t, h: srv.Handler}
	b.open()

	if rr := b.add("Dupont", "Jean", "0612345678", "10"); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestMissingOrExpiredSession(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	anon := &browser{t: t, h: srv.Handler}
	if rr := anon.configure("100"); rr.Code != http.StatusConflict {
		t.Fatalf("no cookie status=%d", rr.Code)
	}

	stale := &browser{t: t, h: srv.Handler, cookie: &http.Cookie{Name: session.CookieName, Value: "gone"}}
	if rr := stale.configure("100"); rr.Code != http.StatusConflict {
		t.Fatalf("unknown session status=%d", rr.Code)
	}
}

func TestReloadDiscardsPreviousSession(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	b := &browser{t: t, h: srv.Handler}
	b.open()
	b.configure("100")
	old := b.cookie

	b.open()
	if b.cookie.Value == old.Value {
		t.Fatal("reload reused the session id")
	}
	prev := &browser{t: t, h: srv.Handler, cookie: old}
	if rr := prev.add("Dupont", "Jean", "0612345678", "10"); rr.Code != http.StatusConflict {
		t.Fatalf("old session still usable: status=%d", rr.Code)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	alice := &browser{t: t, h: srv.Handler}
	bob := &browser{t: t, h: srv.Handler}
	alice.open()
	bob.open()

	alice.configure("100")
	bob.configure("200")
	alice.add("Dupont", "Jean", "0612345678", "10")

	rr := bob.add("Martin", "Alice", "0711223344", "5")
	if strings.Contains(rr.Body.String(), "Jean Dupont") || !strings.Contains(rr.Body.String(), "195.00 €") {
		t.Fatalf("sessions leaked: %s", rr.Body.String())
	}
}

func TestPhoneInputFormatting(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	b := &browser{t: t, h: srv.Handler}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"complete number", "0612345678", "06 12 34 56 78"},
		{"complete number with spaces", " 06 12 34 56 78 ", "06 12 34 56 78"},
		{"partial number", "06123", "06123"},
		{"trailing space kept", "06 12 ", "06 12 "},
		{"leading space kept", " 06", " 06"},
		{"too many digits", "061234567890", "061234567890"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := b.do(http.MethodPost, "/ui/phone", url.Values{"telephone": {tt.input}})
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			if rr.Body.Len() != 0 {
				t.Errorf("phone field must not be swapped, got body %q", rr.Body.String())
			}
			var triggers map[string]map[string]string
			if err := json.Unmarshal([]byte(rr.Header().Get("HX-Trigger")), &triggers); err != nil {
				t.Fatalf("HX-Trigger is not JSON: %v", err)
			}
			got := triggers["phone:formatted"]
			if got["input"] != tt.input || got["value"] != tt.want {
				t.Errorf("phone:formatted = %+v, want input %q value %q", got, tt.input, tt.want)
			}
		})
	}
}

func TestAddRendersResetForm(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	b := &browser{t: t, h: srv.Handler}
	b.open()
	b.configure("100")

	rr := b.add("Dupont", "Jean", "0612345678", "30")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, stale := range []string{`value="Dupont"`, `value="Jean"`, `value="06 12 34 56 78"`, `value="30"`} {
		if strings.Contains(body, stale) {
			t.Errorf("form still holds %s after add", stale)
		}
	}
	if !strings.Contains(body, "Jean Dupont") {
		t.Errorf("added contribution missing from ledger: %s", body)
	}
}

func TestExportXLSX(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	b := &browser{t: t, h: srv.Handler}
	b.open()

	if rr := b.do(http.MethodGet, "/export.xlsx", nil); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("export before configure status=%d", rr.Code)
	}

	b.configure("100")
	b.add("Dupont", "Jean", "0612345678", "30")
	b.add("Martin", "Alice", "0711223344", "12.50")

	rr := b.do(http.MethodGet, "/export.xlsx", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != `attachment; filename="contributions.xlsx"` {
		t.Errorf("Content-Disposition = %q", cd)
	}

	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Contributions", excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %v", rows)
	}
	if strings.Join(rows[0], "|") != "Prénom|Nom|Téléphone|Montant (€)" {
		t.Errorf("header = %v", rows[0])
	}
	if strings.Join(rows[1], "|") != "Alice|Martin|07 11 22 33 44|12.5" {
		t.Errorf("first row = %v", rows[1])
	}

	// Exporting does not change the ledger.
	rr = b.add("Petit", "Luc", "0600000000", "57.50")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `<span id="remaining">0.00 €</span>`) {
		t.Fatalf("ledger changed by export: %s", rr.Body.String())
	}
}

func TestExportSheets(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		srv := newTestServer(t, nil, nil)
		b := &browser{t: t, h: srv.Handler}
		b.open()
		b.configure("100")
		if rr := b.do(http.MethodPost, "/export/sheets", url.Values{}); rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("status=%d", rr.Code)
		}
	})

	t.Run("published", func(t *testing.T) {
		pub := &fakePublisher{}
		srv := newTestServer(t, pub, nil)
		b := &browser{t: t, h: srv.Handler}
		b.open()
		b.configure("100")
		rr := b.add("Dupont", "Jean", "0612345678", "30")
		if !strings.Contains(rr.Body.String(), "Exporter vers Google Sheets") {
			t.Error("remote export button hidden")
		}

		rr = b.do(http.MethodPost, "/export/sheets", url.Values{})
		if rr.Code != http.StatusAccepted {
			t.Fatalf("status=%d", rr.Code)
		}
		if len(pub.jobs) != 1 || len(pub.jobs[0].Sheet.Rows) != 1 || pub.jobs[0].ID == "" {
			t.Fatalf("jobs = %+v", pub.jobs)
		}
	})

	t.Run("broker failure", func(t *testing.T) {
		srv := newTestServer(t, &fakePublisher{err: errors.New("circuit breaker is open")}, nil)
		b := &browser{t: t, h: srv.Handler}
		b.open()
		b.configure("100")
		if rr := b.do(http.MethodPost, "/export/sheets", url.Values{}); rr.Code != http.StatusBadGateway {
			t.Fatalf("status=%d", rr.Code)
		}
	})
}

func TestHealthReadyMetrics(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		var payload map[string]interface{}
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("%s: invalid JSON: %v", path, err)
		}
	}

	down := newTestServer(t, nil, func(context.Context) error { return errors.New("database is locked") })
	rr := httptest.NewRecorder()
	down.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing backend status=%d", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/budget", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "show-notification") {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Cache-Control"), "max-age=3600") {
		t.Errorf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}
}

func TestNewServerRequiresSessions(t *testing.T) {
	if _, err := NewServer(":0", Deps{}); err == nil {
		t.Fatal("expected error without a session manager")
	}
}
