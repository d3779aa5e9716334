package server_test

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"

	"github.com/edgecomet/siteguard/internal/audit"
	"github.com/edgecomet/siteguard/internal/common/configtypes"
	"github.com/edgecomet/siteguard/internal/common/redis"
	"github.com/edgecomet/siteguard/internal/hostsfile"
	"github.com/edgecomet/siteguard/internal/metrics"
	"github.com/edgecomet/siteguard/internal/risk"
	"github.com/edgecomet/siteguard/internal/scancache"
	"github.com/edgecomet/siteguard/internal/server"
)

const hostsPrefix = "127.0.0.1\tlocalhost\n# local overrides\n10.0.0.5\tnas.lan\n"

type env struct {
	dir       string
	hostsPath string
	auditPath string
	mr        *miniredis.Miniredis
	collector *metrics.Collector
	client    *fasthttp.Client
	cancel    context.CancelFunc
	done      chan error
	cleanup   []func()
}

func startEnv() *env {
	e := &env{dir: GinkgoT().TempDir()}
	e.hostsPath = filepath.Join(e.dir, "hosts")
	e.auditPath = filepath.Join(e.dir, "audit", "audit.log")
	Expect(os.WriteFile(e.hostsPath, []byte(hostsPrefix), 0o644)).To(Succeed())

	logger := zap.NewNop()

	var err error
	e.mr, err = miniredis.Run()
	Expect(err).NotTo(HaveOccurred())
	e.cleanup = append(e.cleanup, e.mr.Close)

	rc, err := redis.NewClient(&configtypes.RedisConfig{Addr: e.mr.Addr()}, logger)
	Expect(err).NotTo(HaveOccurred())
	e.cleanup = append(e.cleanup, func() { _ = rc.Close() })

	e.collector = metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry(), logger)

	emitter, err := audit.NewFileEmitter(configtypes.AuditConfig{Enabled: true, Path: e.auditPath}, logger)
	Expect(err).NotTo(HaveOccurred())
	e.cleanup = append(e.cleanup, func() { _ = emitter.Close() })

	store := hostsfile.NewLockedStore(
		hostsfile.NewStore(e.hostsPath, &hostsfile.OSPersister{Atomic: true}, logger),
		filepath.Join(e.dir, "hosts.lock"),
		logger,
	)
	cache := scancache.NewRedisCache(rc, time.Hour, e.collector, logger)
	assessor := risk.NewAssessor(risk.NewLogisticScorer(risk.DefaultModel()), cache, logger)

	srv := server.NewServer(store, assessor, e.collector, emitter, nil, configtypes.ServerConfig{
		Timeout:         configtypes.Duration(5 * time.Second),
		MaxBodySize:     1024,
		ClientIPHeaders: []string{"X-Forwarded-For"},
	}, logger)
	srv.AddReadinessCheck("Scan cache", rc.HealthCheck)

	ln := fasthttputil.NewInmemoryListener()
	e.client = &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan error, 1)
	go func() { e.done <- srv.Serve(ctx, ln) }()

	return e
}

func (e *env) stop() {
	e.cancel()
	Eventually(e.done, 5*time.Second).Should(Receive(BeNil()))
	for i := len(e.cleanup) - 1; i >= 0; i-- {
		e.cleanup[i]()
	}
}

func (e *env) call(method, path, body string, headers ...string) (int, string, *fasthttp.ResponseHeader) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://siteguard" + path)
	req.Header.SetMethod(method)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	if body != "" {
		req.Header.SetContentType("application/json")
		req.SetBodyString(body)
	}

	Expect(e.client.DoTimeout(req, resp, 5*time.Second)).To(Succeed())

	header := &fasthttp.ResponseHeader{}
	resp.Header.CopyTo(header)
	return resp.StatusCode(), string(resp.Body()), header
}

func (e *env) hostsFile() string {
	data, err := os.ReadFile(e.hostsPath)
	Expect(err).NotTo(HaveOccurred())
	return string(data)
}

func (e *env) metricsText() string {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/metrics")
	e.collector.ServeHTTP(ctx)
	return string(ctx.Response.Body())
}

var _ = Describe("HTTP API", func() {
	var e *env

	BeforeEach(func() {
		e = startEnv()
	})

	AfterEach(func() {
		e.stop()
	})

	Context("scanning", func() {
		It("flags a phishing-looking URL and reports its domain", func() {
			status, body, _ := e.call("POST", "/check", `{"url":"http://secure-login-update.bank-alert.com"}`)
			Expect(status).To(Equal(200))

			var a risk.Assessment
			Expect(json.Unmarshal([]byte(body), &a)).To(Succeed())
			Expect(a.Domain).To(Equal("secure-login-update.bank-alert.com"))
			Expect(a.Block).To(BeTrue())
			Expect(a.Score).To(BeNumerically(">", risk.Threshold))
		})

		It("serves the second scan of a URL from the cache", func() {
			url := `{"url":"http://192.168.10.20/verify"}`
			_, first, _ := e.call("POST", "/check", url)
			_, second, _ := e.call("POST", "/check", url)

			Expect(second).To(MatchJSON(first))
			Expect(e.mr.Exists(scancache.Key("http://192.168.10.20/verify"))).To(BeTrue())
			Expect(e.metricsText()).To(ContainSubstring(`test_siteguard_scan_cache_hit_ratio 0.5`))
		})

		It("rejects an empty URL", func() {
			status, body, _ := e.call("POST", "/check", `{"url":""}`)
			Expect(status).To(Equal(400))
			Expect(body).To(MatchJSON(`{"error":"Empty URL"}`))
		})

		It("rejects bodies over the configured limit", func() {
			big := `{"url":"http://` + strings.Repeat("a", 2048) + `.com"}`
			status, _, _ := e.call("POST", "/check", big)
			Expect(status).To(Equal(fasthttp.StatusRequestEntityTooLarge))
		})
	})

	Context("blocking", func() {
		It("adds, lists and removes domains without touching the rest of the file", func() {
			status, body, _ := e.call("POST", "/api/add", `{"domain":"evil.com"}`)
			Expect(status).To(Equal(200))
			Expect(body).To(MatchJSON(`{"added":true}`))

			e.call("POST", "/api/add", `{"domain":"evil.com"}`)
			e.call("POST", "/api/add", `{"domain":"worse.net"}`)

			Expect(e.hostsFile()).To(Equal(hostsPrefix +
				"# WEBSITE_BLOCKER_START\n127.0.0.1\tevil.com\n127.0.0.1\tworse.net\n# WEBSITE_BLOCKER_END\n"))

			_, body, _ = e.call("GET", "/api/list", "")
			Expect(body).To(MatchJSON(`{"blocked":["evil.com","worse.net"]}`))

			status, body, _ = e.call("POST", "/api/remove", `{"domain":"evil.com"}`)
			Expect(status).To(Equal(200))
			Expect(body).To(MatchJSON(`{"removed":true}`))

			Expect(e.hostsFile()).To(HavePrefix(hostsPrefix))
			Expect(e.hostsFile()).NotTo(ContainSubstring("evil.com"))
			Expect(e.metricsText()).To(ContainSubstring("test_siteguard_managed_entries 1"))
		})

		It("writes an audit line per change", func() {
			e.call("POST", "/api/add", `{"domain":"evil.com"}`, "X-Request-ID", "req-1", "X-Forwarded-For", "203.0.113.9")
			e.call("POST", "/api/remove", `{"domain":"ghost.com"}`, "X-Request-ID", "req-2")

			Eventually(func() string {
				data, _ := os.ReadFile(e.auditPath)
				return string(data)
			}).Should(And(
				ContainSubstring("\tblock\tevil.com\tadded\treq-1\t203.0.113.9\n"),
				ContainSubstring("\tunblock\tghost.com\tabsent\treq-2\t"),
			))
		})

		It("refuses to edit a malformed block", func() {
			broken := hostsPrefix + "# WEBSITE_BLOCKER_END\n# WEBSITE_BLOCKER_START\n"
			Expect(os.WriteFile(e.hostsPath, []byte(broken), 0o644)).To(Succeed())

			status, body, _ := e.call("POST", "/api/add", `{"domain":"evil.com"}`)
			Expect(status).To(Equal(500))
			Expect(body).To(MatchJSON(`{"error":"Hosts file block is malformed"}`))
			Expect(e.hostsFile()).To(Equal(broken))

			status, _, _ = e.call("GET", "/ready", "")
			Expect(status).To(Equal(503))
		})

		It("refuses to add to a file whose end marker was deleted", func() {
			broken := hostsPrefix + "# WEBSITE_BLOCKER_START\n127.0.0.1\told.com\n"
			Expect(os.WriteFile(e.hostsPath, []byte(broken), 0o644)).To(Succeed())

			status, body, _ := e.call("POST", "/api/add", `{"domain":"evil.com"}`)
			Expect(status).To(Equal(500))
			Expect(body).To(MatchJSON(`{"error":"Hosts file block is malformed"}`))
			Expect(e.hostsFile()).To(Equal(broken))
		})
	})

	Context("service endpoints", func() {
		It("answers health and readiness", func() {
			status, body, _ := e.call("GET", "/health", "")
			Expect(status).To(Equal(200))
			Expect(body).To(Equal("OK"))

			status, _, _ = e.call("GET", "/ready", "")
			Expect(status).To(Equal(200))
		})

		It("reports not ready while Redis is failing", func() {
			e.mr.SetError("LOADING Redis is loading the dataset in memory")

			status, body, _ := e.call("GET", "/ready", "")
			Expect(status).To(Equal(503))
			Expect(body).To(MatchJSON(`{"error":"Scan cache unavailable"}`))

			e.mr.SetError("")
			status, _, _ = e.call("GET", "/ready", "")
			Expect(status).To(Equal(200))
		})

		It("tags every response with a request ID", func() {
			_, _, h := e.call("GET", "/missing", "", "X-Request-ID", "abc-123")
			Expect(string(h.Peek("X-Request-ID"))).To(Equal("abc-123"))

			_, _, h = e.call("GET", "/health", "", "X-Request-ID", "bad id with spaces")
			Expect(string(h.Peek("X-Request-ID"))).NotTo(Equal("bad id with spaces"))
			Expect(string(h.Peek("X-Request-ID"))).NotTo(BeEmpty())
		})

		It("counts requests by endpoint", func() {
			e.call("GET", "/health", "")
			e.call("GET", "/nope", "")
			Expect(e.metricsText()).To(And(
				ContainSubstring(`test_siteguard_requests_total{endpoint="/health",status="2xx"} 1`),
				ContainSubstring(`test_siteguard_requests_total{endpoint="other",status="4xx"} 1`),
			))
		})
	})
})
