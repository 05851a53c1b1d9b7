package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"carerules/internal/core"
	"carerules/internal/infra/persistence/memory"
	"carerules/pkg/domain"
	"carerules/pkg/ruleapi"
	"carerules/pkg/view"
)

const weightBody = `{"$type":"QuantityObservation","attributes":{"value":12.5,"unitOfMeasure":"kg"}}`

func newTestService(t *testing.T) (*core.Service, *memory.Store) {
	t.Helper()
	engine := core.NewEngine()
	if err := engine.AddValidator(domain.TypeQuantityObservation, ruleapi.NewValidator("weight.unit", func(_ context.Context, obj *view.View, _ ruleapi.Capabilities) (domain.Issues, error) {
		switch obj.String("unitOfMeasure") {
		case "kg":
			return nil, nil
		case "lb":
			return domain.Issues{ruleapi.Issue("kgonly", domain.PriorityError)}, nil
		default:
			return domain.Issues{ruleapi.Issue("unit", domain.PriorityWarning)}, nil
		}
	})); err != nil {
		t.Fatalf("add validator: %v", err)
	}
	if err := engine.AddBusinessRule(domain.TypeQuantityObservation, ruleapi.AfterInsert, ruleapi.NewRule("weight.stamp", func(_ context.Context, obj *view.View, _ ruleapi.Capabilities) (ruleapi.Result, error) {
		obj.SetTag("stamped", true)
		return ruleapi.Passthrough(obj), nil
	})); err != nil {
		t.Fatalf("add rule: %v", err)
	}
	if err := engine.AddBusinessRule(domain.TypeQuantityObservation, ruleapi.AfterObsolete, ruleapi.NewRule("weight.lookup", func(_ context.Context, _ *view.View, _ ruleapi.Capabilities) (ruleapi.Result, error) {
		return ruleapi.Result{}, domain.NotFoundError{ID: "clinic-9"}
	})); err != nil {
		t.Fatalf("add rule: %v", err)
	}
	repo := memory.NewStore()
	return core.NewService(engine, nil, repo, nil), repo
}

func do(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestInsertRetrieveUpdate(t *testing.T) {
	svc, repo := newTestService(t)
	h := NewRouter(svc, Config{}, zerolog.Nop())

	rec := do(t, h, http.MethodPost, "/v1/objects", weightBody, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("insert status %d: %s", rec.Code, rec.Body)
	}
	created := decode[commitResponse](t, rec)
	if created.Object == nil || created.Object.ID == "" {
		t.Fatalf("expected generated id, got %+v", created)
	}
	if created.Object.Tags["stamped"] != true {
		t.Fatalf("AfterInsert change not returned: %+v", created.Object.Tags)
	}
	stored, err := repo.Get(context.Background(), created.Object.ID)
	if err != nil || stored.Tags["stamped"] != true {
		t.Fatalf("AfterInsert change not saved: %+v (%v)", stored, err)
	}

	rec = do(t, h, http.MethodGet, "/v1/objects/"+created.Object.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d: %s", rec.Code, rec.Body)
	}
	got := decode[domain.Object](t, rec)
	if diff := cmp.Diff(created.Object.Attributes, got.Attributes); diff != "" {
		t.Fatalf("retrieved attributes mismatch (-want +got):\n%s", diff)
	}

	rec = do(t, h, http.MethodPut, "/v1/objects/"+created.Object.ID, `{"$type":"QuantityObservation","attributes":{"value":13,"unitOfMeasure":"kg"}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", rec.Code, rec.Body)
	}
	updated := decode[commitResponse](t, rec)
	if updated.Object.ID != created.Object.ID || updated.Object.Attributes["value"] != float64(13) {
		t.Fatalf("unexpected update %+v", updated.Object)
	}
}

func TestErrorMapping(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewRouter(svc, Config{}, zerolog.Nop())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing object", http.MethodGet, "/v1/objects/nope", "", http.StatusNotFound, "not_found"},
		{"update unknown", http.MethodPut, "/v1/objects/nope", weightBody, http.StatusNotFound, "not_found"},
		{"malformed body", http.MethodPost, "/v1/objects", `{`, http.StatusBadRequest, "invalid_body"},
		{"missing type", http.MethodPost, "/v1/validate", `{"attributes":{}}`, http.StatusBadRequest, "invalid_body"},
		{"unknown type", http.MethodPost, "/v1/validate", `{"$type":"Spaceship"}`, http.StatusBadRequest, "transform"},
		{"id mismatch", http.MethodPut, "/v1/objects/a", `{"$type":"QuantityObservation","id":"b"}`, http.StatusBadRequest, "id_mismatch"},
		{"failing rule", http.MethodPost, "/v1/dispatch/AfterObsolete?hydrate=false", weightBody, http.StatusInternalServerError, "handler"},
		{"blocked insert", http.MethodPost, "/v1/objects", `{"$type":"QuantityObservation","attributes":{"unitOfMeasure":"lb"}}`, http.StatusUnprocessableEntity, "blocked"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body, nil)
			if rec.Code != tt.status {
				t.Fatalf("status %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
			if body := decode[errorBody](t, rec); body.Error != tt.code {
				t.Fatalf("error code %q, want %q", body.Error, tt.code)
			}
		})
	}

	rec := do(t, h, http.MethodPost, "/v1/objects", `{"$type":"QuantityObservation","attributes":{"unitOfMeasure":"lb"}}`, nil)
	if body := decode[errorBody](t, rec); len(body.Issues) != 1 || body.Issues[0].Text != "kgonly" {
		t.Fatalf("expected blocking issues in body, got %+v", body)
	}
}

func TestValidateAndDispatch(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewRouter(svc, Config{}, zerolog.Nop())

	rec := do(t, h, http.MethodPost, "/v1/validate", `{"$type":"QuantityObservation","attributes":{"unitOfMeasure":"g"}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate status %d: %s", rec.Code, rec.Body)
	}
	v := decode[validateResponse](t, rec)
	want := domain.Issues{{Text: "unit", Priority: domain.PriorityWarning, Validator: "weight.unit"}}
	if diff := cmp.Diff(want, v.Issues); diff != "" || v.Blocking {
		t.Fatalf("unexpected validation (blocking=%v):\n%s", v.Blocking, diff)
	}

	rec = do(t, h, http.MethodPost, "/v1/dispatch/AfterInsert?hydrate=false", weightBody, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dispatch status %d: %s", rec.Code, rec.Body)
	}
	d := decode[dispatchResponse](t, rec)
	if d.Trigger != "AfterInsert" || !d.Mutated || d.Object.Tags["stamped"] != true {
		t.Fatalf("unexpected dispatch %+v", d)
	}

	rec = do(t, h, http.MethodPost, "/v1/dispatch/BeforeDelete", weightBody, nil)
	if d := decode[dispatchResponse](t, rec); d.Mutated || d.Transformed {
		t.Fatalf("empty chain should leave the object unchanged: %+v", d)
	}
}

func TestRulesAndHealth(t *testing.T) {
	svc, _ := newTestService(t)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "ok_metric 1\n") })
	h := NewRouter(svc, Config{Metrics: metrics}, zerolog.Nop())

	if rec := do(t, h, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/metrics", "", nil); !strings.Contains(rec.Body.String(), "ok_metric") {
		t.Fatalf("metrics handler not mounted: %q", rec.Body)
	}
	rec := do(t, h, http.MethodGet, "/v1/rules", "", nil)
	got := decode[rulesResponse](t, rec)
	want := []chainInfo{{
		Type:       domain.TypeQuantityObservation,
		Triggers:   map[string][]string{ruleapi.AfterInsert: {"weight.stamp"}, ruleapi.AfterObsolete: {"weight.lookup"}},
		Validators: []string{"weight.unit"},
	}}
	if diff := cmp.Diff(want, got.Chains); diff != "" {
		t.Fatalf("chains mismatch (-want +got):\n%s", diff)
	}
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestBearerAuth(t *testing.T) {
	svc, _ := newTestService(t)
	secret := []byte("test-secret")
	h := NewRouter(svc, Config{JWTSecret: string(secret)}, zerolog.Nop())

	valid := signToken(t, jwt.SigningMethodHS256, secret, jwt.RegisteredClaims{
		Subject:   "nurse-7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	expired := signToken(t, jwt.SigningMethodHS256, secret, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	wrongKey := signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.RegisteredClaims{})
	wrongAlg := signToken(t, jwt.SigningMethodHS512, secret, jwt.RegisteredClaims{})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"wrong algorithm", "Bearer " + wrongAlg, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.header != "" {
				header.Set("Authorization", tt.header)
			}
			if rec := do(t, h, http.MethodGet, "/v1/rules", "", header); rec.Code != tt.status {
				t.Fatalf("status %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
		})
	}

	if rec := do(t, h, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz must stay public, got %d", rec.Code)
	}
}

func TestSubjectFromToken(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) { seen = Subject(r.Context()) })
	secret := []byte("k")
	token := signToken(t, jwt.SigningMethodHS256, secret, jwt.RegisteredClaims{Subject: "nurse-7"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	bearerAuth(secret)(next).ServeHTTP(httptest.NewRecorder(), req)
	if seen != "nurse-7" {
		t.Fatalf("subject %q", seen)
	}
	if Subject(context.Background()) != "" {
		t.Fatalf("expected empty subject without token")
	}
}

func TestRateLimit(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewRouter(svc, Config{RateLimit: 2}, zerolog.Nop())
	for i := 0; i < 2; i++ {
		if rec := do(t, h, http.MethodGet, "/v1/rules", "", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	rec := do(t, h, http.MethodGet, "/v1/rules", "", nil)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected 429 with Retry-After, got %d %v", rec.Code, rec.Header())
	}
	if rec := do(t, h, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz is not rate limited, got %d", rec.Code)
	}
}

func TestRequestSpans(t *testing.T) {
	svc, _ := newTestService(t)
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	h := NewRouter(svc, Config{TracerProvider: tp}, zerolog.Nop())

	do(t, h, http.MethodGet, "/healthz", "", nil)
	do(t, h, http.MethodGet, "/v1/rules", "", nil)

	var names []string
	for _, span := range rec.Ended() {
		names = append(names, span.Name())
	}
	if diff := cmp.Diff([]string{"GET /v1/rules"}, names); diff != "" {
		t.Fatalf("span names (-want +got):\n%s", diff)
	}
}
