package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dnsdivert/dnsdivert/src/internal/config"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy"
	"github.com/dnsdivert/dnsdivert/src/internal/dnsproxy/policy"
)

type fakeService struct {
	mu        sync.Mutex
	snap      *policy.Snapshot
	reloads   int
	reloadErr error
	cfgPath   string
}

func (f *fakeService) Stats() dnsproxy.Stats {
	return dnsproxy.Stats{State: "running", Received: 42, Diverted: 10}
}

func (f *fakeService) Snapshot() *policy.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeService) Upstreams() []string {
	return []string{"udp://1.1.1.1:53", "system://"}
}

func (f *fakeService) Reload() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	if f.reloadErr != nil {
		return f.reloadErr
	}
	cfg, err := config.LoadConfig(f.cfgPath)
	if err != nil {
		return err
	}
	snap, err := config.BuildSnapshot(cfg)
	if err != nil {
		return err
	}
	f.snap = snap
	return nil
}

type fakeCheck struct {
	mu   sync.Mutex
	subs map[chan string]struct{}
}

func (f *fakeCheck) Subscribe() chan string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan string, 10)
	f.subs[ch] = struct{}{}
	return ch
}

func (f *fakeCheck) Unsubscribe(ch chan string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[ch]; ok {
		delete(f.subs, ch)
		close(ch)
	}
}

func (f *fakeCheck) broadcast(domain string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		ch <- domain
	}
	return len(f.subs)
}

type testEnv struct {
	dir     string
	cfgPath string
	service *fakeService
	check   *fakeCheck
	hasher  *config.ConfigHasher
	router  http.Handler
}

func newTestEnv(t *testing.T, withFiles bool) *testEnv {
	t.Helper()
	dir := t.TempDir()

	content := `[server]
diversion_address = "10.0.0.1"
whitelist = ["inline-token"]
`
	if withFiles {
		content += "whitelist_file = \"whitelist.txt\"\nallowed_clients_file = \"clients.txt\"\n"
		if err := os.WriteFile(filepath.Join(dir, "whitelist.txt"), []byte("netflix\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	cfgPath := filepath.Join(dir, "dnsdivert.toml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		dir:     dir,
		cfgPath: cfgPath,
		service: &fakeService{cfgPath: cfgPath},
		check:   &fakeCheck{subs: map[chan string]struct{}{}},
		hasher:  config.NewConfigHasher(cfgPath),
	}
	if err := env.service.Reload(); err != nil {
		t.Fatalf("initial reload: %v", err)
	}
	env.service.reloads = 0

	hash, err := env.hasher.UpdateCurrentConfigHash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	env.hasher.SetActiveConfigHash(hash)

	env.router = NewRouter(cfgPath, env.service, env.hasher, env.check)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.RemoteAddr = "127.0.0.1:40000"

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	wrapper := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(rec.Body.Bytes(), &wrapper); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	if err := json.Unmarshal(wrapper.Data, v); err != nil {
		t.Fatalf("invalid data %q: %v", wrapper.Data, err)
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error JSON %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp HealthResponse
	decodeData(t, rec, &resp)
	if resp.Status != "ok" || resp.State != "running" {
		t.Errorf("Unexpected health response: %+v", resp)
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp StatusResponse
	decodeData(t, rec, &resp)
	if resp.Mode != policy.ModeWhitelist || resp.DiversionAddress != "10.0.0.1" || resp.WhitelistSize != 2 {
		t.Errorf("Unexpected status: %+v", resp)
	}
	if len(resp.Upstreams) != 2 || resp.Stats.Received != 42 {
		t.Errorf("Unexpected status: %+v", resp)
	}
	if resp.ConfigChanged == nil || *resp.ConfigChanged {
		t.Errorf("Expected config_changed=false, got %v", resp.ConfigChanged)
	}
}

func TestWhitelist_RoundTrip(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/api/v1/whitelist", "")
	var before WhitelistResponse
	decodeData(t, rec, &before)
	if len(before.Domains) != 1 || before.Domains[0] != "netflix" || before.Inline[0] != "inline-token" {
		t.Errorf("Unexpected whitelist: %+v", before)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/whitelist", `{"domains":["hulu","# streaming","Disney"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var after WhitelistResponse
	decodeData(t, rec, &after)
	if strings.Join(after.Domains, ",") != "hulu,# streaming,Disney" {
		t.Errorf("Unexpected whitelist after update: %+v", after)
	}

	if env.service.reloads != 1 {
		t.Errorf("Expected one reload, got %d", env.service.reloads)
	}
	snap := env.service.Snapshot()
	if d := policy.Decide("www.disney.com", snap); d.Action != policy.Divert {
		t.Error("Expected new token to be applied")
	}
	if d := policy.Decide("netflix.com", snap); d.Action != policy.Forward {
		t.Error("Expected old token to be removed")
	}
}

func TestWhitelist_NoFileConfigured(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPut, "/api/v1/whitelist", `{"domains":["hulu"]}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != ErrCodeConflict {
		t.Errorf("Unexpected error code %s", e.Code)
	}
	if env.service.reloads != 0 {
		t.Error("No reload expected")
	}
}

func TestAllowedClients(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/api/v1/allowed-clients", "")
	var before AllowedClientsResponse
	decodeData(t, rec, &before)
	if len(before.Clients) != 0 || before.Enabled {
		t.Errorf("Unexpected clients: %+v", before)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/allowed-clients", `{"clients":["192.168.1.0/24","10.0.0.7"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var after AllowedClientsResponse
	decodeData(t, rec, &after)
	if len(after.Clients) != 2 {
		t.Errorf("Unexpected clients after update: %+v", after)
	}

	snap := env.service.Snapshot()
	if len(snap.AllowedClients) != 2 || !snap.AllowedClients[1].Contains(netip.MustParseAddr("10.0.0.7")) {
		t.Errorf("Unexpected snapshot clients: %v", snap.AllowedClients)
	}
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t, true)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   ErrorCode
	}{
		{"invalid JSON", "/api/v1/whitelist", `{"domains":`, http.StatusBadRequest, ErrCodeInvalidRequest},
		{"unknown field", "/api/v1/whitelist", `{"hosts":["a"]}`, http.StatusBadRequest, ErrCodeInvalidRequest},
		{"empty domain", "/api/v1/whitelist", `{"domains":["ok",""]}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"invalid client", "/api/v1/allowed-clients", `{"clients":["not-an-ip"]}`, http.StatusBadRequest, ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if e := decodeError(t, rec); e.Code != tt.code {
				t.Errorf("Expected %s, got %s", tt.code, e.Code)
			}
		})
	}

	if env.service.reloads != 0 {
		t.Error("Invalid requests must not reload")
	}
}

func TestReload(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/v1/reload", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp ReloadResponse
	decodeData(t, rec, &resp)
	if resp.Mode != policy.ModeWhitelist || resp.WhitelistSize != 2 {
		t.Errorf("Unexpected reload response: %+v", resp)
	}

	env.service.reloadErr = fmt.Errorf("boom")
	rec = env.do(t, http.MethodPost, "/api/v1/reload", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != ErrCodeServiceError {
		t.Errorf("Unexpected error code %s", e.Code)
	}
}

func TestMiddleware(t *testing.T) {
	env := newTestEnv(t, false)

	t.Run("public address is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.RemoteAddr = "203.0.113.5:1234"
		req.Header.Set("X-Forwarded-For", "127.0.0.1")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", rec.Code)
		}
	})

	t.Run("private addresses are accepted", func(t *testing.T) {
		for _, addr := range []string{"192.168.1.5:1", "[::1]:1", "[fd00::1]:1", "10.1.2.3:1"} {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
			req.RemoteAddr = addr
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("%s: expected 200, got %d", addr, rec.Code)
			}
		}
	})

	t.Run("non-JSON body is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/whitelist", strings.NewReader("hulu"))
		req.Header.Set("Content-Type", "text/plain")
		req.RemoteAddr = "127.0.0.1:1"
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

func TestCheckDNS_Stream(t *testing.T) {
	env := newTestEnv(t, false)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/check/dns")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Unexpected content type %q", ct)
	}

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	expect := func(want string) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed before %q", want)
				}
				if line == want {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", want)
			}
		}
	}

	expect("data: " + dnsproxy.DNSCheckDomain)

	probe := "probe." + dnsproxy.DNSCheckDomain
	if n := env.check.broadcast(probe); n != 1 {
		t.Fatalf("Expected one subscriber, got %d", n)
	}
	expect("data: " + probe)
}
