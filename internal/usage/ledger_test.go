package usage

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rugviz-be/internal/identity"
	"rugviz-be/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	log, err := logger.New("error")
	require.NoError(t, err)
	return log
}

func newTestLedger(t *testing.T, opts Options) (*Ledger, string) {
	log := testLogger(t)
	path := filepath.Join(t.TempDir(), "usage.json")

	store, err := NewFileStore(path, log)
	require.NoError(t, err)

	return NewLedger(store, opts, log), path
}

func newRequest(cookieToken, remoteAddr string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/upload", nil)
	r.RemoteAddr = remoteAddr
	if cookieToken != "" {
		r.AddCookie(&http.Cookie{Name: identity.CookieName, Value: cookieToken})
	}
	return r
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestResolveIdentityKeys(t *testing.T) {
	day := time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		mode       IdentityMode
		cookie     string
		remoteAddr string
		expected   []string
	}{
		{
			name:       "both mode with cookie and ip",
			mode:       ModeBoth,
			cookie:     "abc123",
			remoteAddr: "203.0.113.9:40000",
			expected:   []string{"cookie:abc123_20250402", "ip:203.0.113.9_20250402"},
		},
		{
			name:       "both mode without cookie",
			mode:       ModeBoth,
			remoteAddr: "203.0.113.9:40000",
			expected:   []string{"ip:203.0.113.9_20250402"},
		},
		{
			name:       "cookie mode ignores ip",
			mode:       ModeCookie,
			cookie:     "abc123",
			remoteAddr: "203.0.113.9:40000",
			expected:   []string{"cookie:abc123_20250402"},
		},
		{
			name:       "ip mode ignores cookie",
			mode:       ModeIP,
			cookie:     "abc123",
			remoteAddr: "203.0.113.9:40000",
			expected:   []string{"ip:203.0.113.9_20250402"},
		},
		{
			name:     "nothing resolvable falls back to anon",
			mode:     ModeBoth,
			expected: []string{"ip:anon_20250402"},
		},
		{
			name:     "cookie mode without cookie falls back to anon",
			mode:     ModeCookie,
			expected: []string{"ip:anon_20250402"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, _ := newTestLedger(t, Options{
				DailyLimit: 3,
				Mode:       tt.mode,
				Now:        fixedNow(day),
			})

			keys := ledger.ResolveIdentityKeys(newRequest(tt.cookie, tt.remoteAddr))
			assert.Equal(t, tt.expected, keys)
		})
	}
}

func TestQuotaLifecycle(t *testing.T) {
	day := time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)
	ledger, _ := newTestLedger(t, Options{DailyLimit: 3, Now: fixedNow(day)})

	r := newRequest("visitor1", "203.0.113.9:40000")

	for i := 1; i <= 3; i++ {
		assert.True(t, ledger.IsAllowed(r), "request %d should be allowed", i)
		assert.Equal(t, i, ledger.RecordUse(r))
	}

	assert.False(t, ledger.IsAllowed(r))
	assert.Equal(t, 3, ledger.CurrentCount(r))
}

func TestQuotaFollowsBusiestIdentity(t *testing.T) {
	day := time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)
	ledger, _ := newTestLedger(t, Options{DailyLimit: 3, Mode: ModeBoth, Now: fixedNow(day)})

	// Exhaust the quota under one cookie
	r := newRequest("visitor1", "203.0.113.9:40000")
	for i := 0; i < 3; i++ {
		ledger.RecordUse(r)
	}

	// A fresh cookie from the same address is still blocked: the ip key
	// already carries three uses, and the count is the max across keys
	fresh := newRequest("visitor2", "203.0.113.9:40000")
	assert.False(t, ledger.IsAllowed(fresh))
	assert.Equal(t, 3, ledger.CurrentCount(fresh))

	// The same cookie from a new address is blocked too
	moved := newRequest("visitor1", "198.51.100.7:40000")
	assert.False(t, ledger.IsAllowed(moved))
}

func TestDayRollover(t *testing.T) {
	day := time.Date(2025, 4, 2, 23, 50, 0, 0, time.UTC)
	current := day

	ledger, path := newTestLedger(t, Options{
		DailyLimit: 3,
		Now:        func() time.Time { return current },
	})

	r := newRequest("visitor1", "203.0.113.9:40000")
	for i := 0; i < 3; i++ {
		ledger.RecordUse(r)
	}
	assert.False(t, ledger.IsAllowed(r))

	// Cross midnight: quota resets and the old keys are pruned from disk
	current = day.Add(20 * time.Minute)
	assert.True(t, ledger.IsAllowed(r))
	assert.Equal(t, 0, ledger.CurrentCount(r))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "20250402")
}

func TestConcurrentRecordUse(t *testing.T) {
	day := time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)
	ledger, _ := newTestLedger(t, Options{DailyLimit: 100, Now: fixedNow(day)})

	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			ledger.RecordUse(newRequest("visitor1", "203.0.113.9:40000"))
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines, ledger.CurrentCount(newRequest("visitor1", "203.0.113.9:40000")))
}

func TestCorruptStoreStartsEmpty(t *testing.T) {
	day := time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)
	ledger, path := newTestLedger(t, Options{DailyLimit: 3, Now: fixedNow(day)})

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	r := newRequest("visitor1", "203.0.113.9:40000")
	assert.True(t, ledger.IsAllowed(r))
	assert.Equal(t, 0, ledger.CurrentCount(r))

	// The store recovers on the next write
	assert.Equal(t, 1, ledger.RecordUse(r))
	assert.Equal(t, 1, ledger.CurrentCount(r))
}

func TestStalePruningPersistsBack(t *testing.T) {
	day := time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)
	ledger, path := newTestLedger(t, Options{DailyLimit: 3, Now: fixedNow(day)})

	seed := `{"ip:203.0.113.9_20250401": 3, "cookie:visitor1_20250330": 2, "ip:203.0.113.9_20250402": 1}`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	r := newRequest("", "203.0.113.9:40000")
	assert.Equal(t, 1, ledger.CurrentCount(r))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "20250401")
	assert.NotContains(t, string(data), "20250330")
	assert.Contains(t, string(data), "20250402")
}

func TestRecordUseIncrementsEveryKey(t *testing.T) {
	day := time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)
	ledger, _ := newTestLedger(t, Options{DailyLimit: 3, Mode: ModeBoth, Now: fixedNow(day)})

	r := newRequest("visitor1", "203.0.113.9:40000")
	ledger.RecordUse(r)

	ledger.store.View(func(table map[string]int) {
		assert.Equal(t, 1, table["cookie:visitor1_20250402"])
		assert.Equal(t, 1, table["ip:203.0.113.9_20250402"])
	})
}

func TestEnsureIdentityCookie(t *testing.T) {
	day := time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)
	ledger, _ := newTestLedger(t, Options{DailyLimit: 3, Now: fixedNow(day)})

	t.Run("issues token and attaches it to the live request", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := newRequest("", "203.0.113.9:40000")

		ledger.EnsureIdentityCookie(w, r)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, identity.CookieName, cookies[0].Name)
		assert.Len(t, cookies[0].Value, cookieTokenBytes*2)
		assert.True(t, cookies[0].HttpOnly)

		// The same request must now resolve a cookie identity
		got, err := r.Cookie(identity.CookieName)
		require.NoError(t, err)
		assert.Equal(t, cookies[0].Value, got.Value)
	})

	t.Run("existing token is kept", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := newRequest("visitor1", "203.0.113.9:40000")

		ledger.EnsureIdentityCookie(w, r)
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("garbage token is replaced and the new one is live", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := newRequest("!!!", "203.0.113.9:40000")

		ledger.EnsureIdentityCookie(w, r)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		issued := cookies[0].Value
		require.NotEmpty(t, issued)

		// The garbage copy must not shadow the fresh token: the same
		// request now resolves a cookie identity key
		keys := ledger.ResolveIdentityKeys(r)
		assert.Contains(t, keys, "cookie:"+issued+"_20250402")

		// A second call sees the issued token and stays quiet
		w2 := httptest.NewRecorder()
		ledger.EnsureIdentityCookie(w2, r)
		assert.Empty(t, w2.Result().Cookies())
	})
}

func TestDayBoundaryUsesFixedTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)

	// 18:30 UTC on April 2 is already April 3 in ICT (UTC+7)
	now := time.Date(2025, 4, 2, 18, 30, 0, 0, time.UTC)
	ledger, _ := newTestLedger(t, Options{
		DailyLimit: 3,
		Location:   loc,
		Now:        fixedNow(now),
	})

	keys := ledger.ResolveIdentityKeys(newRequest("", "203.0.113.9:40000"))
	assert.Equal(t, []string{"ip:203.0.113.9_20250403"}, keys)
}

func TestParseIdentityMode(t *testing.T) {
	tests := []struct {
		input    string
		expected IdentityMode
	}{
		{"cookie", ModeCookie},
		{"ip", ModeIP},
		{"both", ModeBoth},
		{" IP ", ModeIP},
		{"", ModeBoth},
		{"nonsense", ModeBoth},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseIdentityMode(tt.input))
		})
	}
}
