package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"storefront-gateway/metrics"
	"storefront-gateway/middleware/csrf"
	csrfapp "storefront-gateway/middleware/csrf/application"
	"storefront-gateway/middleware/exempt"
	rlapp "storefront-gateway/middleware/ratelimit/application"
	rldomain "storefront-gateway/middleware/ratelimit/domain"
	rlinfra "storefront-gateway/middleware/ratelimit/infra"
	"storefront-gateway/middleware/tenant"
	tenantapp "storefront-gateway/middleware/tenant/application"
	tenantdomain "storefront-gateway/middleware/tenant/domain"
	tenantinfra "storefront-gateway/middleware/tenant/infra"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func seedStores() *tenantinfra.MemoryLookup {
	return tenantinfra.NewMemoryLookup(
		tenantdomain.Store{
			ID: "store-demo", Slug: "demo", Plan: "FREE",
			Domains: []tenantdomain.StoreDomain{{Domain: "shop.example.com", IsPrimary: true}},
		},
		tenantdomain.Store{ID: "store-acme", Slug: "acme", Plan: "STARTER"},
		tenantdomain.Store{
			ID: "store-big", Slug: "big", Plan: "ENTERPRISE",
			Domains: []tenantdomain.StoreDomain{
				{Domain: "big.example.org", IsPrimary: true},
				{Domain: "www.big.example.org"},
			},
		},
	)
}

type fixture struct {
	handler http.Handler
	spans   *tracetest.SpanRecorder
	metrics *metrics.Metrics
	guard   *csrfapp.Guard
	seen    *[]*http.Request
	mu      *sync.Mutex
}

func newFixture(t *testing.T, mutate func(*Options)) fixture {
	t.Helper()

	guard, err := csrfapp.NewGuard(testSecret, csrfapp.WithExempt(exempt.Default()))
	require.NoError(t, err)

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	m := metrics.New(prometheus.NewRegistry())

	opts := Options{
		BaseDomain:     "stormcom.app",
		Production:     true,
		Lookup:         seedStores(),
		LookupTimeout:  time.Second,
		CSRF:           guard,
		RateLimit:      rlapp.NewService(rlinfra.NewMemoryCounterStore()),
		Metrics:        m,
		TracerProvider: tp,
	}
	if mutate != nil {
		mutate(&opts)
	}

	gw, err := New(opts)
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []*http.Request
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(tenantapp.StoreIDFromContext(r.Context())))
	})

	return fixture{handler: gw.Handler(next), spans: sr, metrics: m, guard: guard, seen: &seen, mu: &mu}
}

func (f fixture) do(method, url string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, url, nil)
	r.RemoteAddr = "203.0.113.7:40000"
	if mutate != nil {
		mutate(r)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestNew_RequiresLookupAndBaseDomain(t *testing.T) {
	_, err := New(Options{BaseDomain: "stormcom.app"})
	assert.ErrorIs(t, err, ErrNoLookup)

	_, err = New(Options{Lookup: seedStores(), BaseDomain: " . "})
	assert.ErrorIs(t, err, ErrNoBaseDomain)
}

func TestGateway_SubdomainRedirectsToPrimaryDomain(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "http://demo.stormcom.app/products?sort=price", nil)

	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "https://shop.example.com/products?sort=price", w.Header().Get("Location"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, *f.seen, "redirect must stop the chain")

	spans := f.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "gateway.handle", spans[0].Name())
	v, ok := spanAttr(spans[0], "gateway.decision")
	require.True(t, ok)
	assert.Equal(t, DecisionRedirect, v.AsString())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Redirects))
}

func TestGateway_PrimaryDomainProceedsWithBoundContext(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "http://shop.example.com/products", func(r *http.Request) {
		r.Header.Set(HeaderStoreID, "spoofed")
		r.Header.Set(tenant.HeaderRequestID, "req-123")
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "store-demo", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get(tenant.HeaderRequestID))
	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "99", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))

	require.Len(t, *f.seen, 1)
	up := (*f.seen)[0]
	assert.Equal(t, "store-demo", up.Header.Get(HeaderStoreID))
	assert.Equal(t, "demo", up.Header.Get(HeaderStoreSlug))
	assert.Equal(t, "FREE", up.Header.Get(HeaderStorePlan))

	spans := f.spans.Ended()
	require.Len(t, spans, 1)
	v, _ := spanAttr(spans[0], "tenant.store_id")
	assert.Equal(t, "store-demo", v.AsString())
	v, _ = spanAttr(spans[0], "gateway.decision")
	assert.Equal(t, DecisionProceed, v.AsString())
	v, _ = spanAttr(spans[0], "http.method")
	assert.Equal(t, "GET", v.AsString())
}

func TestGateway_SubdomainWithoutPrimaryServesInPlace(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "http://acme.stormcom.app/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "store-acme", w.Body.String())
	assert.Equal(t, "500", w.Header().Get("X-RateLimit-Limit"))
}

func TestGateway_NonPrimaryCustomDomainRedirects(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Production = false })

	w := f.do(http.MethodGet, "http://www.big.example.org/cart", nil)
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "http://big.example.org/cart", w.Header().Get("Location"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestGateway_UnknownHostIsNotFound(t *testing.T) {
	f := newFixture(t, nil)

	for _, host := range []string{"nope.stormcom.app", "www.stormcom.app", "stormcom.app", "random.example.net"} {
		w := f.do(http.MethodGet, "http://"+host+"/", nil)
		assert.Equal(t, http.StatusNotFound, w.Code, host)

		var body struct {
			Error struct{ Code string } `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "STORE_NOT_FOUND", body.Error.Code)
	}
	assert.Empty(t, *f.seen)
}

func TestGateway_HealthBypassesTenantAndLimiter(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "http://10.0.0.5:8080/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, w.Header().Get(tenant.HeaderRequestID))
}

func TestGateway_StateChangingRequestNeedsCSRFToken(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "http://shop.example.com/api/cart", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "CSRF_VALIDATION_FAILED")
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"), "csrf is decided before the limiter")

	spans := f.spans.Ended()
	v, _ := spanAttr(spans[len(spans)-1], "gateway.decision")
	assert.Equal(t, DecisionCSRFRejected, v.AsString())

	tok, err := f.guard.Issue()
	require.NoError(t, err)
	w = f.do(http.MethodPost, "http://shop.example.com/api/cart", func(r *http.Request) {
		r.Header.Set(csrf.HeaderName, tok)
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGateway_WebhooksSkipCSRF(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "http://shop.example.com/api/webhooks/payments", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGateway_IssuesCSRFToken(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "http://shop.example.com"+CSRFTokenPath, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NoError(t, f.guard.Validate(body.CSRFToken))
	assert.Empty(t, *f.seen, "token route is answered by the gateway")

	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == csrf.CookieName {
			found = true
			assert.True(t, c.Secure)
		}
	}
	assert.True(t, found, "expected csrf cookie")
}

func TestGateway_RateLimitExceeded(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.RateLimit = rlapp.NewService(rlinfra.NewMemoryCounterStore(), rlapp.WithPlans(map[rldomain.Tier]rldomain.Plan{
			rldomain.TierFree: {Requests: 2, Window: time.Minute},
		}))
	})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, f.do(http.MethodGet, "http://shop.example.com/", nil).Code)
	}
	w := f.do(http.MethodGet, "http://shop.example.com/", nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")

	// outro cliente da mesma loja tem cota própria
	w = f.do(http.MethodGet, "http://shop.example.com/", func(r *http.Request) { r.RemoteAddr = "198.51.100.1:1" })
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGateway_ConcurrentRequestsAreExact(t *testing.T) {
	f := newFixture(t, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	codes := map[int]int{}
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := f.do(http.MethodGet, "http://shop.example.com/", nil)
			mu.Lock()
			codes[w.Code]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, codes[http.StatusOK])
	assert.Equal(t, 50, codes[http.StatusTooManyRequests])
}

func TestGateway_ConcurrentTenantsDoNotLeak(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.RateLimit = nil })

	hosts := map[string]string{
		"shop.example.com":  "store-demo",
		"acme.stormcom.app": "store-acme",
		"big.example.org":   "store-big",
	}

	var wg sync.WaitGroup
	errs := make(chan string, 300)
	for i := 0; i < 100; i++ {
		for host, want := range hosts {
			wg.Add(1)
			go func(host, want string) {
				defer wg.Done()
				w := f.do(http.MethodGet, "http://"+host+"/", nil)
				if got := w.Body.String(); got != want {
					errs <- host + " got " + got
				}
			}(host, want)
		}
	}
	wg.Wait()
	close(errs)

	var leaked []string
	for e := range errs {
		leaked = append(leaked, e)
	}
	assert.Empty(t, leaked, strings.Join(leaked, "; "))
}

type failingLookup struct{}

func (failingLookup) FindStoreByDomain(context.Context, string) (*tenantdomain.Store, error) {
	return nil, errors.New("connection reset by peer")
}

func (failingLookup) FindStoreBySlug(context.Context, string) (*tenantdomain.Store, error) {
	return nil, errors.New("connection reset by peer")
}

func TestGateway_LookupFailureIsUnavailable(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Lookup = failingLookup{} })

	w := f.do(http.MethodGet, "http://shop.example.com/", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "UPSTREAM_UNAVAILABLE")

	spans := f.spans.Ended()
	v, _ := spanAttr(spans[0], "gateway.decision")
	assert.Equal(t, DecisionUnavailable, v.AsString())
}

type downCounter struct{}

func (downCounter) Increment(context.Context, rldomain.Key, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("dial tcp: connection refused")
}

func TestGateway_RateLimiterFailsOpen(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.RateLimit = rlapp.NewService(downCounter{}) })

	for i := 0; i < 150; i++ {
		require.Equal(t, http.StatusOK, f.do(http.MethodGet, "http://shop.example.com/", nil).Code)
	}
	assert.Equal(t, float64(150), testutil.ToFloat64(f.metrics.RateLimitDegraded))
}
