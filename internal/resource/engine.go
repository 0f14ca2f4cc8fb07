// Package resource implements the generic CRUD engine that owns one JSON
// collection file: cache-aware reads, validated writes and the verb table
// that maps requests onto them.
package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/justwrite/internal/apperr"
	"github.com/starford/justwrite/internal/checksum"
	"github.com/starford/justwrite/internal/record"
	"github.com/starford/justwrite/internal/storage"
)

// Timestamp fields written when Policy.Timestamp is set.
const (
	CreatedField = "created"
	UpdatedField = "updated"
)

// timeLayout matches the ISO-8601 form produced by JavaScript's Date#toJSON.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Policy configures validation and stamping for one collection.
type Policy struct {
	RequiredFields []string
	UniqueFields   []string
	// Timestamp stamps "created" on insert and "updated" on replace.
	Timestamp bool
	// TagField names the comma-joined tag list used by Tagged. Empty
	// disables tagged listing.
	TagField string
}

func (p Policy) validation() record.Policy {
	return record.Policy{Required: p.RequiredFields, Unique: p.UniqueFields}
}

// Hook receives the record affected by a successful mutation.
type Hook func(collection string, r record.Record)

// Hooks are invoked after the corresponding mutation has been persisted.
// Every field is optional.
type Hooks struct {
	Created  Hook
	Replaced Hook
	Deleted  Hook
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithHooks registers post-operation hooks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithMetrics records operation outcomes and collection sizes.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithIDGenerator replaces the identifier generator.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithClock replaces the time source used for timestamps.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// Engine owns one collection file and its in-memory snapshot.
//
// Reads are served from the snapshot once loaded. Mutations are serialized:
// each one reloads the file, validates, and rewrites the whole collection
// before the next may start.
type Engine struct {
	name    string
	file    string
	store   storage.Provider
	policy  Policy
	logger  *slog.Logger
	hooks   Hooks
	metrics *Metrics
	newID   func() string
	now     func() time.Time

	writeMu sync.Mutex

	mu     sync.RWMutex
	cache  []record.Record
	loaded bool
	sum    string
	// gen moves on every persist and Invalidate; a load only installs its
	// snapshot if gen is unchanged since the read began.
	gen uint64
}

// New creates an engine for the collection name persisted at file.
func New(name, file string, store storage.Provider, policy Policy, opts ...Option) *Engine {
	e := &Engine{
		name:   name,
		file:   file,
		store:  store,
		policy: policy,
		logger: slog.Default(),
		newID:  shortID,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the collection name.
func (e *Engine) Name() string { return e.name }

// File returns the collection file path relative to the content root.
func (e *Engine) File() string { return e.file }

// Policy returns the engine's validation policy.
func (e *Engine) Policy() Policy { return e.policy }

// Checksum returns the digest of the bytes last loaded or written, or ""
// when nothing is cached.
func (e *Engine) Checksum() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sum
}

// Invalidate drops the cached snapshot; the next read goes to storage.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.cache = nil
	e.loaded = false
	e.sum = ""
	e.gen++
	e.mu.Unlock()
}

// List returns every record matching filters. An empty filter set returns
// the whole collection in stored order.
func (e *Engine) List(ctx context.Context, filters map[string]any) ([]record.Record, error) {
	out, _, err := e.list(ctx, filters)
	return out, err
}

// Tagged lists the records matching filters whose tag field contains every
// id in tagIDs. An empty tagIDs is rejected.
func (e *Engine) Tagged(ctx context.Context, tagIDs []string, filters map[string]any) ([]record.Record, error) {
	out, _, err := e.tagged(ctx, tagIDs, filters)
	return out, err
}

// Get returns the record with identifier id. If the store ever holds
// duplicate identifiers the first one wins.
func (e *Engine) Get(ctx context.Context, id string) (record.Record, error) {
	out, _, err := e.get(ctx, id)
	return out, err
}

// list, tagged and get also return the checksum of the snapshot the result
// was computed from.
func (e *Engine) list(ctx context.Context, filters map[string]any) (out []record.Record, sum string, err error) {
	defer func() { e.metrics.observe(e.name, "list", err) }()

	data, sum, err := e.load(ctx, false)
	if err != nil {
		return nil, "", err
	}
	return record.ApplyFilters(data, filters), sum, nil
}

func (e *Engine) tagged(ctx context.Context, tagIDs []string, filters map[string]any) (out []record.Record, sum string, err error) {
	defer func() { e.metrics.observe(e.name, "tagged", err) }()

	if e.policy.TagField == "" {
		return nil, "", apperr.NotFound("collection '%s' has no tag field", e.name)
	}
	if len(tagIDs) == 0 {
		return nil, "", apperr.BadRequest("at least one tag ID is required")
	}
	data, sum, err := e.load(ctx, false)
	if err != nil {
		return nil, "", err
	}
	return record.TaggedWith(record.ApplyFilters(data, filters), e.policy.TagField, tagIDs), sum, nil
}

func (e *Engine) get(ctx context.Context, id string) (out record.Record, sum string, err error) {
	defer func() { e.metrics.observe(e.name, "get", err) }()

	data, sum, err := e.load(ctx, false)
	if err != nil {
		return nil, "", err
	}
	idx := indexOf(data, id)
	if idx < 0 {
		return nil, "", apperr.NotFound("ID '%s' not found", id)
	}
	return data[idx], sum, nil
}

// Create assigns a fresh identifier to body, stamps it when configured,
// validates it against the collection and appends it. Any identifier in
// body is ignored.
func (e *Engine) Create(ctx context.Context, body record.Record) (created record.Record, all []record.Record, err error) {
	defer func() { e.metrics.observe(e.name, "create", err) }()

	created, all, err = e.mutate(ctx, func(data []record.Record) ([]record.Record, record.Record, error) {
		rec := record.Record{}
		for k, v := range body {
			rec[k] = v
		}
		rec[record.IDField] = e.uniqueID(data)
		if e.policy.Timestamp {
			rec[CreatedField] = e.stamp()
		}
		if err := record.Validate(rec, data, e.policy.validation()); err != nil {
			return nil, nil, apperr.BadRequest("%s", err.Error())
		}
		return append(data, rec), rec, nil
	})
	if err != nil {
		return nil, nil, err
	}
	if e.hooks.Created != nil {
		e.hooks.Created(e.name, created.Clone())
	}
	return created, all, nil
}

// Replace merges body over the record with identifier id, keeping the
// identifier and position, and validates the result against its peers.
func (e *Engine) Replace(ctx context.Context, id string, body record.Record) (updated record.Record, all []record.Record, err error) {
	defer func() { e.metrics.observe(e.name, "replace", err) }()

	if id == "" {
		return nil, nil, apperr.BadRequest("ID is required")
	}
	updated, all, err = e.mutate(ctx, func(data []record.Record) ([]record.Record, record.Record, error) {
		idx := indexOf(data, id)
		if idx < 0 {
			return nil, nil, apperr.NotFound("ID '%s' not found", id)
		}
		rec := data[idx].Clone()
		for k, v := range body {
			rec[k] = v
		}
		rec[record.IDField] = id
		if e.policy.Timestamp {
			rec[UpdatedField] = e.stamp()
		}
		if err := record.Validate(rec, data, e.policy.validation()); err != nil {
			return nil, nil, apperr.BadRequest("%s", err.Error())
		}
		data[idx] = rec
		return data, rec, nil
	})
	if err != nil {
		return nil, nil, err
	}
	if e.hooks.Replaced != nil {
		e.hooks.Replaced(e.name, updated.Clone())
	}
	return updated, all, nil
}

// Delete removes the record with identifier id and returns what remains.
func (e *Engine) Delete(ctx context.Context, id string) (remaining []record.Record, err error) {
	defer func() { e.metrics.observe(e.name, "delete", err) }()

	if id == "" {
		return nil, apperr.BadRequest("ID is required")
	}
	deleted, remaining, err := e.mutate(ctx, func(data []record.Record) ([]record.Record, record.Record, error) {
		kept := make([]record.Record, 0, len(data))
		var removed record.Record
		for _, r := range data {
			if r.ID() == id {
				if removed == nil {
					removed = r
				}
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == len(data) {
			return nil, nil, apperr.NotFound("ID '%s' not found", id)
		}
		return kept, removed, nil
	})
	if err != nil {
		return nil, err
	}
	if e.hooks.Deleted != nil {
		e.hooks.Deleted(e.name, deleted.Clone())
	}
	return remaining, nil
}

// mutate runs fn against a freshly loaded copy of the collection under the
// write lock and persists the result. Nothing is written when fn fails.
func (e *Engine) mutate(ctx context.Context, fn func([]record.Record) ([]record.Record, record.Record, error)) (record.Record, []record.Record, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	data, _, err := e.load(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	next, affected, err := fn(data)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, apperr.ServerFault(err)
	}
	if err := e.persist(next); err != nil {
		return nil, nil, err
	}
	return affected.Clone(), record.CloneAll(next), nil
}

// load returns a copy of the collection and the checksum of the bytes it
// came from, reading storage when force is set or nothing is cached yet.
func (e *Engine) load(ctx context.Context, force bool) ([]record.Record, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", apperr.ServerFault(err)
	}
	e.mu.RLock()
	if !force && e.loaded {
		out, sum := record.CloneAll(e.cache), e.sum
		e.mu.RUnlock()
		return out, sum, nil
	}
	gen := e.gen
	e.mu.RUnlock()

	raw, err := e.store.Read(e.file)
	if err != nil {
		e.logger.Error("collection read failed",
			slog.String("collection", e.name),
			slog.String("error", err.Error()))
		return nil, "", apperr.ServerFault(fmt.Errorf("read %s: %w", e.name, err))
	}
	var data []record.Record
	if err := json.Unmarshal(raw, &data); err != nil {
		e.logger.Error("collection decode failed",
			slog.String("collection", e.name),
			slog.String("error", err.Error()))
		return nil, "", apperr.ServerFault(fmt.Errorf("decode %s: %w", e.name, err))
	}
	if data == nil {
		data = []record.Record{}
	}
	sum := checksum.Sum(raw)

	e.mu.Lock()
	if e.gen != gen {
		// A write or invalidation landed while reading; raw may be older
		// than what is cached now.
		if e.loaded {
			out, cur := record.CloneAll(e.cache), e.sum
			e.mu.Unlock()
			return out, cur, nil
		}
		e.mu.Unlock()
		return data, sum, nil
	}
	e.cache = data
	e.loaded = true
	e.sum = sum
	e.mu.Unlock()
	e.metrics.setSize(e.name, len(data))

	return record.CloneAll(data), sum, nil
}

// persist writes the whole collection and, only on success, replaces the
// cached snapshot.
func (e *Engine) persist(data []record.Record) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return apperr.ServerFault(fmt.Errorf("encode %s: %w", e.name, err))
	}
	raw = append(raw, '\n')
	if err := e.store.Write(e.file, raw); err != nil {
		e.logger.Error("collection write failed",
			slog.String("collection", e.name),
			slog.String("error", err.Error()))
		return apperr.ServerFault(fmt.Errorf("write %s: %w", e.name, err))
	}

	e.mu.Lock()
	e.cache = record.CloneAll(data)
	e.loaded = true
	e.sum = checksum.Sum(raw)
	e.gen++
	e.mu.Unlock()
	e.metrics.setSize(e.name, len(data))
	return nil
}

func (e *Engine) stamp() string {
	return e.now().UTC().Format(timeLayout)
}

// uniqueID draws identifiers until one is unused in data.
func (e *Engine) uniqueID(data []record.Record) string {
	for {
		id := e.newID()
		if id != "" && indexOf(data, id) < 0 {
			return id
		}
	}
}

func indexOf(data []record.Record, id string) int {
	for i, r := range data {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

// shortID returns a 12-character identifier taken from a random UUID.
func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
