package config

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/qorzen/kernel/internal/kerrors"
	"github.com/qorzen/kernel/internal/logging"
)

// ChangeEvent is emitted for every write that lands in the store, whether
// direct (Set/Delete) or synthesized by Reload.
type ChangeEvent struct {
	Key             string
	OldValue        any
	NewValue        any
	Tier            Tier
	EffectiveChange bool
	At              time.Time
}

// Validator runs before a write commits. It may inspect the whole merged
// view (post-write, hypothetically) to reject writes that would violate a
// cross-key invariant.
type Validator func(key string, value any, view *View) error

// View is a read-only snapshot of the merged configuration at one version.
type View struct {
	version uint64
	entries map[string]mergedEntry
}

type mergedEntry struct {
	value any
	tier  Tier
}

// Get returns the value visible at key in this snapshot.
func (v *View) Get(key string) (any, bool) {
	e, ok := v.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Store is the merged, versioned view over every tier.
type Store struct {
	log *logging.Logger

	tiers   map[Tier]TierStore
	snapMu  sync.Mutex // serializes recompute + swap; readers never take it
	snap    atomic.Pointer[View]
	version atomic.Uint64

	valMu      sync.RWMutex
	validators map[string][]Validator

	subMu sync.Mutex
	subs  []*changeSub

	validate *validator.Validate
}

type changeSub struct {
	prefix string
	ch     chan ChangeEvent
}

// New builds a Store with an in-memory MapStore behind every tier. Callers
// may replace a tier's store (e.g. with a FileTierSource) via SetTierStore
// before the store is used.
func New(log *logging.Logger) *Store {
	if log == nil {
		log = logging.NewDefault()
	}
	s := &Store{
		log:        log,
		tiers:      make(map[Tier]TierStore, len(Tiers())),
		validators: make(map[string][]Validator),
		validate:   validator.New(),
	}
	for _, t := range Tiers() {
		s.tiers[t] = NewMapStore(t)
	}
	s.recompute()
	return s
}

// SetTierStore swaps the backing store for one tier (e.g. a file-backed
// source) and recomputes the merged snapshot.
func (s *Store) SetTierStore(t Tier, store TierStore) {
	s.snapMu.Lock()
	s.tiers[t] = store
	s.snapMu.Unlock()
	s.recompute()
}

// RegisterValidator binds v to every key sharing keyOrPrefix as an exact
// match or dotted-path prefix.
func (s *Store) RegisterValidator(keyOrPrefix string, v Validator) {
	s.valMu.Lock()
	defer s.valMu.Unlock()
	s.validators[keyOrPrefix] = append(s.validators[keyOrPrefix], v)
}

func (s *Store) validatorsFor(key string) []Validator {
	s.valMu.RLock()
	defer s.valMu.RUnlock()
	var out []Validator
	for prefix, vs := range s.validators {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			out = append(out, vs...)
		}
	}
	return out
}

// Get returns the value visible for key across every tier, highest first.
func (s *Store) Get(key string) (any, bool) {
	return s.snap.Load().Get(key)
}

// Subtree returns every key under prefix (dot-joined, prefix stripped) in
// the current merged view. Used to materialize a plugin's namespaced
// configuration at load time.
func (s *Store) Subtree(prefix string) map[string]any {
	snap := s.snap.Load()
	out := make(map[string]any)
	full := prefix + "."
	for k, e := range snap.entries {
		if strings.HasPrefix(k, full) {
			out[strings.TrimPrefix(k, full)] = e.value
		}
	}
	return out
}

// GetTyped decodes the value at key into T and, if T is a struct carrying
// `validate` tags, schema-validates it. A missing key or schema failure
// returns a config/validation-kind error.
func GetTyped[T any](s *Store, key string) (T, error) {
	var out T
	raw, ok := s.Get(key)
	if !ok {
		return out, kerrors.Config("config.store", "key not found").WithMeta("key", key)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return out, kerrors.Internal("config.store", "encode failed").WithCause(err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, kerrors.Validation("config.store", "type mismatch").WithCause(err).WithMeta("key", key)
	}
	if err := s.validate.Struct(out); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); !ok {
			return out, kerrors.Validation("config.store", "schema validation failed").WithCause(err).WithMeta("key", key)
		}
	}
	return out, nil
}

// Set writes value to tier. Registered validators run against the merged
// view as it would be after the write; a validator failure rejects the
// write before any tier store is touched.
func (s *Store) Set(key string, value any, tier Tier) error {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	hypothetical := s.mergeWith(key, value, tier)
	for _, v := range s.validatorsFor(key) {
		if err := v(key, value, hypothetical); err != nil {
			return kerrors.Validation("config.store", "validator rejected write").WithCause(err).WithMeta("key", key)
		}
	}

	store, ok := s.tiers[tier]
	if !ok {
		return kerrors.Config("config.store", "unknown tier")
	}

	old, hadOld := s.snap.Load().Get(key)
	if err := store.Set(key, value); err != nil {
		return kerrors.Config("config.store", "tier write failed").WithCause(err)
	}

	s.recomputeLocked()
	newVal, _ := s.snap.Load().Get(key)
	effective := !hadOld || !equalJSON(old, newVal)
	s.emit(ChangeEvent{Key: key, OldValue: old, NewValue: newVal, Tier: tier, EffectiveChange: effective, At: time.Now()})
	return nil
}

// Delete removes key from tier only; the merged view then reflects
// whatever lower tier still holds it, if any.
func (s *Store) Delete(key string, tier Tier) error {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	store, ok := s.tiers[tier]
	if !ok {
		return kerrors.Config("config.store", "unknown tier")
	}

	old, _ := s.snap.Load().Get(key)
	if err := store.Delete(key); err != nil {
		return kerrors.Config("config.store", "tier delete failed").WithCause(err)
	}

	s.recomputeLocked()
	newVal, stillHeld := s.snap.Load().Get(key)
	if !stillHeld {
		newVal = nil
	}
	s.emit(ChangeEvent{Key: key, OldValue: old, NewValue: newVal, Tier: tier, EffectiveChange: !equalJSON(old, newVal), At: time.Now()})
	return nil
}

// Reload asks tier's backing store to refresh, if it supports Refresher,
// and emits a synthesized ChangeEvent for every key whose merged value
// differs before/after.
func (s *Store) Reload(tier Tier) error {
	s.snapMu.Lock()
	store, ok := s.tiers[tier]
	if !ok {
		s.snapMu.Unlock()
		return kerrors.Config("config.store", "unknown tier")
	}
	refresher, ok := store.(Refresher)
	if !ok {
		s.snapMu.Unlock()
		return nil
	}

	before := s.snap.Load()
	next, err := refresher.Refresh()
	if err != nil {
		s.snapMu.Unlock()
		return kerrors.Config("config.store", "reload failed").WithCause(err)
	}

	if ms, ok := store.(*MapStore); ok {
		ms.replaceAll(next)
	}
	s.recomputeLocked()
	after := s.snap.Load()
	s.snapMu.Unlock()

	seen := make(map[string]bool, len(before.entries)+len(after.entries))
	for k := range before.entries {
		seen[k] = true
	}
	for k := range after.entries {
		seen[k] = true
	}
	for k := range seen {
		oldVal, _ := before.Get(k)
		newVal, _ := after.Get(k)
		if !equalJSON(oldVal, newVal) {
			s.emit(ChangeEvent{Key: k, OldValue: oldVal, NewValue: newVal, Tier: tier, EffectiveChange: true, At: time.Now()})
		}
	}
	return nil
}

// SubscribeChanges returns a stream of ChangeEvents whose key starts with
// prefix (empty matches every key).
func (s *Store) SubscribeChanges(prefix string) <-chan ChangeEvent {
	ch := make(chan ChangeEvent, 64)
	s.subMu.Lock()
	s.subs = append(s.subs, &changeSub{prefix: prefix, ch: ch})
	s.subMu.Unlock()
	return ch
}

func (s *Store) emit(ev ChangeEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, sub := range s.subs {
		if sub.prefix == "" || strings.HasPrefix(ev.Key, sub.prefix) {
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}

// recompute rebuilds the merged snapshot without assuming the caller holds
// snapMu.
func (s *Store) recompute() {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.recomputeLocked()
}

func (s *Store) recomputeLocked() {
	entries := make(map[string]mergedEntry)
	for _, t := range Tiers() {
		store := s.tiers[t]
		if store == nil {
			continue
		}
		for _, k := range store.Keys("") {
			if v, ok := store.Get(k); ok {
				entries[k] = mergedEntry{value: v, tier: t}
			}
		}
	}
	v := s.version.Add(1)
	s.snap.Store(&View{version: v, entries: entries})
}

// mergeWith computes a hypothetical merged view as if key=value had
// already been written to tier, without mutating any tier store.
func (s *Store) mergeWith(key string, value any, tier Tier) *View {
	base := s.snap.Load()
	entries := make(map[string]mergedEntry, len(base.entries)+1)
	for k, e := range base.entries {
		entries[k] = e
	}
	if existing, ok := entries[key]; !ok || tier >= existing.tier {
		entries[key] = mergedEntry{value: value, tier: tier}
	}
	return &View{version: base.version + 1, entries: entries}
}

func equalJSON(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	aj, err1 := json.Marshal(a)
	bj, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(aj) == string(bj)
}
