package cache

import (
	"fmt"
	"sort"
	"time"
)

// DefaultTTL applies to modules without an entry in the TTL table.
const DefaultTTL = 30 * time.Second

// Policy decides how long each module's fragment stays fresh.
type Policy struct {
	DefaultTTL  time.Duration
	TTLs        map[string]time.Duration
	ForceReload map[string]bool
}

// DefaultPolicy returns the panel's stock TTL table. Billing and profile
// data always go to the network.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: DefaultTTL,
		TTLs: map[string]time.Duration{
			"profile":         30 * time.Second,
			"invoices":        60 * time.Second,
			"billing-history": 60 * time.Second,
			"all-services":    45 * time.Second,
			"vps-services":    45 * time.Second,
			"docker-services": 45 * time.Second,
			"n8n-services":    45 * time.Second,
			"projects":        60 * time.Second,
		},
		ForceReload: map[string]bool{
			"profile":         true,
			"invoices":        true,
			"billing-history": true,
		},
	}
}

// TTL returns the freshness window for id.
func (p Policy) TTL(id string) time.Duration {
	if d, ok := p.TTLs[id]; ok {
		return d
	}
	return p.DefaultTTL
}

// Forced reports whether id bypasses fresh entries.
func (p Policy) Forced(id string) bool {
	return p.ForceReload[id]
}

// With returns a copy of p with the given TTL overrides and force-reload
// set applied. A nil forced slice keeps the current set.
func (p Policy) With(defaultTTL time.Duration, ttls map[string]time.Duration, forced []string) Policy {
	out := Policy{
		DefaultTTL:  p.DefaultTTL,
		TTLs:        make(map[string]time.Duration, len(p.TTLs)+len(ttls)),
		ForceReload: make(map[string]bool, len(p.ForceReload)),
	}
	if defaultTTL > 0 {
		out.DefaultTTL = defaultTTL
	}
	for id, d := range p.TTLs {
		out.TTLs[id] = d
	}
	for id, d := range ttls {
		out.TTLs[id] = d
	}
	if forced == nil {
		for id, v := range p.ForceReload {
			out.ForceReload[id] = v
		}
	} else {
		for _, id := range forced {
			out.ForceReload[id] = true
		}
	}
	return out
}

// Validate rejects non-positive durations.
func (p Policy) Validate() error {
	if p.DefaultTTL <= 0 {
		return fmt.Errorf("cache: default TTL must be positive, got %s", p.DefaultTTL)
	}
	ids := make([]string, 0, len(p.TTLs))
	for id := range p.TTLs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if p.TTLs[id] <= 0 {
			return fmt.Errorf("cache: TTL for %q must be positive, got %s", id, p.TTLs[id])
		}
	}
	return nil
}
