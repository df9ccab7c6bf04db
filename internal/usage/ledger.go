// Package usage implements the per-visitor daily generation quota: a
// persisted, file-backed counter table keyed by identity and calendar day,
// safe under concurrent requests.
package usage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"rugviz-be/internal/identity"
	"rugviz-be/pkg/logger"
)

// IdentityMode selects which identity sources the ledger consults.
type IdentityMode string

const (
	ModeCookie IdentityMode = "cookie"
	ModeIP     IdentityMode = "ip"
	ModeBoth   IdentityMode = "both"
)

// ParseIdentityMode maps a config string to an IdentityMode, defaulting to
// ModeBoth for anything unrecognized.
func ParseIdentityMode(s string) IdentityMode {
	switch IdentityMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCookie:
		return ModeCookie
	case ModeIP:
		return ModeIP
	default:
		return ModeBoth
	}
}

// Identity key scopes. Keys look like "cookie:a1b2c3_20250402".
const (
	scopeCookie = "cookie"
	scopeIP     = "ip"
)

const (
	cookieTokenBytes = 10
	cookieLifetime   = 30 * 24 * time.Hour
	dateLayout       = "20060102"
)

// Options configures a Ledger.
type Options struct {
	DailyLimit   int
	Mode         IdentityMode
	Location     *time.Location // fixed timezone for day boundaries
	Now          func() time.Time
	CookieSecure bool
}

// Ledger answers "has this client exceeded today's quota?" and "record one
// more use". Every operation is total: malformed input degrades to the anon
// identity and persistence failures fail open with the in-memory count.
type Ledger struct {
	store  *FileStore
	limit  int
	mode   IdentityMode
	loc    *time.Location
	now    func() time.Time
	secure bool
	log    *logger.Logger
}

// NewLedger creates a ledger over the given store.
func NewLedger(store *FileStore, opts Options, log *logger.Logger) *Ledger {
	if opts.DailyLimit <= 0 {
		opts.DailyLimit = 3
	}
	if opts.Mode == "" {
		opts.Mode = ModeBoth
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Ledger{
		store:  store,
		limit:  opts.DailyLimit,
		mode:   opts.Mode,
		loc:    opts.Location,
		now:    opts.Now,
		secure: opts.CookieSecure,
		log:    log,
	}
}

// DailyLimit returns the configured per-identity daily quota.
func (l *Ledger) DailyLimit() int {
	return l.limit
}

// today returns the current calendar day in the ledger's fixed timezone.
func (l *Ledger) today() string {
	return l.now().In(l.loc).Format(dateLayout)
}

// ResolveIdentityKeys builds today's identity key(s) for a request according
// to the identity mode. It always returns at least one key: when neither
// source resolves it falls back to a single anonymous IP-scope key.
func (l *Ledger) ResolveIdentityKeys(r *http.Request) []string {
	id := identity.FromRequest(r)
	date := l.today()

	keys := make([]string, 0, 2)
	if l.mode != ModeIP && id.CookieToken != "" {
		keys = append(keys, fmt.Sprintf("%s:%s_%s", scopeCookie, id.CookieToken, date))
	}
	if l.mode != ModeCookie && id.IPAddress != "" && id.IPAddress != identity.AnonIdentity {
		keys = append(keys, fmt.Sprintf("%s:%s_%s", scopeIP, id.IPAddress, date))
	}

	if len(keys) == 0 {
		keys = append(keys, fmt.Sprintf("%s:%s_%s", scopeIP, identity.AnonIdentity, date))
	}
	return keys
}

// CurrentCount returns the maximum count across all identity keys resolved
// for this request. Judging a client by its busiest identity is the
// conservative choice: two identities never combine into a doubled quota.
func (l *Ledger) CurrentCount(r *http.Request) int {
	keys := l.ResolveIdentityKeys(r)

	var max int
	l.loadPruned(func(table map[string]int) {
		for _, k := range keys {
			if c := table[k]; c > max {
				max = c
			}
		}
	})
	return max
}

// IsAllowed reports whether the client is still under today's quota.
func (l *Ledger) IsAllowed(r *http.Request) bool {
	return l.CurrentCount(r) < l.limit
}

// RecordUse increments every identity key resolved for this request by
// exactly one, persists the table, and returns the maximum resulting count.
// Incrementing all keys together keeps both ledgers honest when a client is
// identifiable two ways. A persistence failure is logged and the in-memory
// count returned anyway (fail open).
func (l *Ledger) RecordUse(r *http.Request) int {
	keys := l.ResolveIdentityKeys(r)
	today := l.today()

	var max int
	err := l.store.Update(func(table map[string]int) bool {
		pruneStale(table, today)
		for _, k := range keys {
			table[k]++
			if table[k] > max {
				max = table[k]
			}
		}
		return true
	})
	if err != nil {
		l.log.WithError(err).WithField("keys", len(keys)).Warn("Failed to persist usage store, continuing with in-memory count")
	}
	return max
}

// EnsureIdentityCookie issues the long-lived visitor identity cookie when
// the request does not carry one yet. The new token is also attached to the
// live request so a RecordUse later in the same request sees it. Calling it
// again once a token exists is a no-op.
func (l *Ledger) EnsureIdentityCookie(w http.ResponseWriter, r *http.Request) {
	if identity.TokenFromRequest(r) != "" {
		return
	}

	buf := make([]byte, cookieTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		// Out of entropy is effectively unreachable; degrade to IP identity.
		l.log.WithError(err).Error("Failed to generate identity token")
		return
	}
	token := hex.EncodeToString(buf)

	cookie := &http.Cookie{
		Name:     identity.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cookieLifetime.Seconds()),
		HttpOnly: true,
		Secure:   l.secure,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, cookie)
	r.AddCookie(cookie)
}

// loadPruned runs fn against the current table after dropping entries from
// other days. When anything was dropped the pruned table is persisted back,
// so the file self-cleans on read and never needs a sweeper job.
func (l *Ledger) loadPruned(fn func(table map[string]int)) {
	today := l.today()

	err := l.store.Update(func(table map[string]int) bool {
		dropped := pruneStale(table, today)
		fn(table)
		return dropped > 0
	})
	if err != nil {
		l.log.WithError(err).Warn("Failed to persist pruned usage store")
	}
}

// pruneStale removes keys whose date suffix is not today and returns how
// many were dropped. Old keys are never reused; day rollover is just the key
// changing.
func pruneStale(table map[string]int, today string) int {
	dropped := 0
	for k := range table {
		idx := strings.LastIndex(k, "_")
		if idx < 0 || k[idx+1:] != today {
			delete(table, k)
			dropped++
		}
	}
	return dropped
}
