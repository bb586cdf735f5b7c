package hub

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/yeremiapane/tenant-realtime/events"
)

var ErrDuplicateConnection = errors.New("connection already registered")

// orgSubs indexes one tenant's subscriptions: org-wide ones and, per user,
// the ones resolved to a single user.
type orgSubs struct {
	org   map[string]*Subscription
	users map[string]map[string]*Subscription
}

func (o *orgSubs) empty() bool { return len(o.org) == 0 && len(o.users) == 0 }

type shard struct {
	mu   sync.RWMutex
	orgs map[string]*orgSubs
}

// Registry is a scope-indexed set of live subscriptions. Tenants are spread
// over shards so one org's churn only contends with orgs hashed alongside
// it; global subscriptions live in their own set.
type Registry struct {
	globalMu sync.RWMutex
	global   map[string]*Subscription

	shards []*shard
	conns  sync.Map // connection id -> *Subscription
	count  atomic.Int64
}

func NewRegistry(shards int) *Registry {
	if shards < 1 {
		shards = 1
	}
	r := &Registry{
		global: make(map[string]*Subscription),
		shards: make([]*shard, shards),
	}
	for i := range r.shards {
		r.shards[i] = &shard{orgs: make(map[string]*orgSubs)}
	}
	return r
}

func (r *Registry) shardFor(orgID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(orgID))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

// Register creates the subscription for connID.
func (r *Registry) Register(connID string, scope events.Scope, queueSize int) (*Subscription, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	sub := newSubscription(connID, scope, queueSize)
	if _, loaded := r.conns.LoadOrStore(connID, sub); loaded {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateConnection, connID)
	}

	if scope.Kind == events.ScopeGlobal {
		r.globalMu.Lock()
		r.global[connID] = sub
		r.globalMu.Unlock()
	} else {
		sh := r.shardFor(scope.OrgID)
		sh.mu.Lock()
		o, ok := sh.orgs[scope.OrgID]
		if !ok {
			o = &orgSubs{org: make(map[string]*Subscription), users: make(map[string]map[string]*Subscription)}
			sh.orgs[scope.OrgID] = o
		}
		if scope.Kind == events.ScopeUser {
			u, ok := o.users[scope.UserID]
			if !ok {
				u = make(map[string]*Subscription)
				o.users[scope.UserID] = u
			}
			u[connID] = sub
		} else {
			o.org[connID] = sub
		}
		sh.mu.Unlock()
	}
	r.count.Add(1)
	return sub, nil
}

// Unregister removes connID and closes its subscription. Once it returns,
// no further envelope reaches that subscription.
func (r *Registry) Unregister(connID string) bool {
	v, ok := r.conns.LoadAndDelete(connID)
	if !ok {
		return false
	}
	sub := v.(*Subscription)
	scope := sub.Scope

	if scope.Kind == events.ScopeGlobal {
		r.globalMu.Lock()
		delete(r.global, connID)
		r.globalMu.Unlock()
	} else {
		sh := r.shardFor(scope.OrgID)
		sh.mu.Lock()
		if o, ok := sh.orgs[scope.OrgID]; ok {
			if scope.Kind == events.ScopeUser {
				if u, ok := o.users[scope.UserID]; ok {
					delete(u, connID)
					if len(u) == 0 {
						delete(o.users, scope.UserID)
					}
				}
			} else {
				delete(o.org, connID)
			}
			if o.empty() {
				delete(sh.orgs, scope.OrgID)
			}
		}
		sh.mu.Unlock()
	}
	sub.close()
	r.count.Add(-1)
	return true
}

// Get returns the subscription registered for connID.
func (r *Registry) Get(connID string) (*Subscription, bool) {
	v, ok := r.conns.Load(connID)
	if !ok {
		return nil, false
	}
	return v.(*Subscription), true
}

// Match returns every subscription allowed to receive an envelope
// published with scope e.
func (r *Registry) Match(e events.Scope) []*Subscription {
	var out []*Subscription

	r.globalMu.RLock()
	for _, s := range r.global {
		out = append(out, s)
	}
	r.globalMu.RUnlock()

	switch e.Kind {
	case events.ScopeGlobal:
		for _, sh := range r.shards {
			sh.mu.RLock()
			for _, o := range sh.orgs {
				out = appendOrg(out, o, "")
			}
			sh.mu.RUnlock()
		}
	case events.ScopeOrg:
		sh := r.shardFor(e.OrgID)
		sh.mu.RLock()
		if o, ok := sh.orgs[e.OrgID]; ok {
			out = appendOrg(out, o, "")
		}
		sh.mu.RUnlock()
	case events.ScopeUser:
		sh := r.shardFor(e.OrgID)
		sh.mu.RLock()
		if o, ok := sh.orgs[e.OrgID]; ok {
			out = appendOrg(out, o, e.UserID)
		}
		sh.mu.RUnlock()
	}
	return out
}

// appendOrg adds the org-wide subscriptions of o, plus either every user
// subscription (onlyUser empty) or those of onlyUser.
func appendOrg(out []*Subscription, o *orgSubs, onlyUser string) []*Subscription {
	for _, s := range o.org {
		out = append(out, s)
	}
	if onlyUser != "" {
		for _, s := range o.users[onlyUser] {
			out = append(out, s)
		}
		return out
	}
	for _, u := range o.users {
		for _, s := range u {
			out = append(out, s)
		}
	}
	return out
}

// Len is the number of registered subscriptions.
func (r *Registry) Len() int { return int(r.count.Load()) }

// ActiveOrgs lists, sorted, the orgs with at least one subscription.
func (r *Registry) ActiveOrgs() []string {
	var orgs []string
	for _, sh := range r.shards {
		sh.mu.RLock()
		for id := range sh.orgs {
			orgs = append(orgs, id)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(orgs)
	return orgs
}

// Each calls fn for every registered subscription.
func (r *Registry) Each(fn func(*Subscription)) {
	r.conns.Range(func(_, v any) bool {
		fn(v.(*Subscription))
		return true
	})
}
