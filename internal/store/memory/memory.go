// Package memory provides an in-memory Store implementation used by tests
// and local development. State can be seeded from a YAML fixture document.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"

	"github.com/havenly/unitwise/internal/store/schema"
	"github.com/havenly/unitwise/pkg/errors"
	"github.com/havenly/unitwise/pkg/fields"
	"github.com/havenly/unitwise/pkg/forms"
	"github.com/havenly/unitwise/pkg/logging"
	"github.com/havenly/unitwise/pkg/store"
)

// Option is a function that configures a memory Store.
type Option func(*config) error

// WithSchema sets the field schema instead of the embedded default.
func WithSchema(s *fields.Schema) Option {
	return func(cfg *config) error {
		if s == nil {
			return errors.NewValidationError("schema", nil, "schema cannot be nil")
		}
		cfg.schema = s
		return nil
	}
}

// WithSeed seeds initial state from a YAML fixture document.
func WithSeed(data []byte) Option {
	return func(cfg *config) error {
		if len(data) == 0 {
			return errors.NewValidationError("seed", nil, "seed data cannot be empty")
		}
		cfg.seed = data
		return nil
	}
}

type config struct {
	schema *fields.Schema
	seed   []byte
}

// Seed is the YAML fixture shape accepted by WithSeed.
type Seed struct {
	Apartments []map[string]any `yaml:"apartments"`
	Units      []map[string]any `yaml:"units"`
	Responses  []SeedResponse   `yaml:"responses"`
	Rejects    []string         `yaml:"rejects"`
}

// SeedResponse is one seeded form response.
type SeedResponse struct {
	ID          string    `yaml:"id"`
	Campaign    string    `yaml:"campaign"`
	SubmittedAt time.Time `yaml:"submitted_at"`
	Payload     string    `yaml:"payload"`
}

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	schema     *fields.Schema
	aptIndex   map[string]fields.Field
	unitIndex  map[string]fields.Field
	apartments map[string]map[string]any
	units      map[string]map[string]any
	responses  []SeedResponse
	rejects    []string
}

// New creates an in-memory store.
func New(opts ...Option) (*Store, error) {
	cfg := &config{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.schema == nil {
		s, err := schema.Default()
		if err != nil {
			return nil, err
		}
		cfg.schema = s
	}

	st := &Store{
		schema:     cfg.schema,
		aptIndex:   cfg.schema.ApartmentIndex(),
		unitIndex:  cfg.schema.UnitIndex(),
		apartments: make(map[string]map[string]any),
		units:      make(map[string]map[string]any),
	}

	if cfg.seed != nil {
		if err := st.load(cfg.seed); err != nil {
			return nil, err
		}
	}

	return st, nil
}

// load applies a YAML seed document.
func (s *Store) load(data []byte) error {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return errors.WrapParse("yaml", "seed", err)
	}
	for _, apt := range seed.Apartments {
		id := fields.Stringify(apt[store.FieldID])
		if id == "" {
			return errors.NewValidationError(store.FieldID, apt, "seeded apartment missing ID")
		}
		s.apartments[id] = apt
	}
	for _, u := range seed.Units {
		id := fields.Stringify(u[store.FieldID])
		if id == "" {
			return errors.NewValidationError(store.FieldID, u, "seeded unit missing ID")
		}
		s.units[id] = u
	}
	s.responses = append(s.responses, seed.Responses...)
	s.rejects = append(s.rejects, seed.Rejects...)
	return nil
}

// record adapts a field-value map to store.Record with schema-aware
// canonical string rendering.
type record struct {
	id     string
	values map[string]any
	index  map[string]fields.Field
}

func (r *record) ID() string { return r.id }

func (r *record) GetString(field string) string {
	v, ok := r.values[field]
	if !ok || v == nil {
		return ""
	}
	f, known := r.index[field]
	if !known {
		return fields.Stringify(v)
	}
	return fields.Canonical(f, normalizeSeedValue(v))
}

func (r *record) Get(field string) any {
	return normalizeSeedValue(r.values[field])
}

// normalizeSeedValue converts YAML decode shapes to the engine's value
// model (YAML integers arrive as int/uint64, lists as []any).
func normalizeSeedValue(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeSeedValue(item)
		}
		return out
	default:
		return v
	}
}

// Apartment returns an apartment record by domain identifier.
func (s *Store) Apartment(_ context.Context, id string) (store.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values, ok := s.apartments[id]
	if !ok {
		return nil, false, nil
	}
	return &record{id: id, values: values, index: s.aptIndex}, true, nil
}

// Unit returns a unit record by domain identifier.
func (s *Store) Unit(_ context.Context, id string) (store.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values, ok := s.units[id]
	if !ok {
		return nil, false, nil
	}
	return &record{id: id, values: values, index: s.unitIndex}, true, nil
}

// UnitByTempID returns the unit stamped with the given temp-id marker.
func (s *Store) UnitByTempID(_ context.Context, tempID string) (store.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, values := range s.units {
		if fields.Stringify(values[store.FieldTempID]) == tempID {
			return &record{id: id, values: values, index: s.unitIndex}, true, nil
		}
	}
	return nil, false, nil
}

// Units returns all unit records, sorted by ID for deterministic output.
func (s *Store) Units(_ context.Context) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.units))
	for id := range s.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]store.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, &record{id: id, values: s.units[id], index: s.unitIndex})
	}
	return out, nil
}

// ApartmentFields returns the apartment table's field metadata.
func (s *Store) ApartmentFields(_ context.Context) ([]fields.Field, error) {
	return s.schema.Apartment, nil
}

// UnitFields returns the units table's field metadata.
func (s *Store) UnitFields(_ context.Context) ([]fields.Field, error) {
	return s.schema.Unit, nil
}

// Submissions returns a campaign's form responses sorted ascending by
// submission time. A response whose payload fails to decode is returned
// with a nil payload so one bad submission never blocks the campaign.
func (s *Store) Submissions(_ context.Context, campaign string) ([]forms.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []forms.Submission
	for _, r := range s.responses {
		if r.Campaign != campaign {
			continue
		}
		sub := forms.Submission{
			ResponseID:  r.ID,
			Campaign:    r.Campaign,
			SubmittedAt: r.SubmittedAt,
		}
		payload, err := forms.DecodePayload([]byte(r.Payload))
		if err != nil {
			logging.Warn().Err(err).Str("response", r.ID).Msg("Skipping undecodable form response")
		} else {
			sub.Payload = payload
		}
		out = append(out, sub)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

// RejectMarkers returns every persisted reject marker.
func (s *Store) RejectMarkers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.rejects))
	copy(out, s.rejects)
	return out, nil
}

// AddRejectMarker appends one marker to the reject list.
func (s *Store) AddRejectMarker(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejects = append(s.rejects, key)
	return nil
}

// AddResponse records a form response. Used by tests and fixtures.
func (s *Store) AddResponse(r SeedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
}

// UpdateApartment updates named fields on an existing apartment.
func (s *Store) UpdateApartment(_ context.Context, id string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	apt, ok := s.apartments[id]
	if !ok {
		return errors.NewNotFoundError("apartment", id)
	}
	for k, v := range values {
		apt[k] = v
	}
	return nil
}

// UpdateUnit updates named fields on an existing unit.
func (s *Store) UpdateUnit(_ context.Context, id string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unit, ok := s.units[id]
	if !ok {
		return errors.NewNotFoundError("unit", id)
	}
	for k, v := range values {
		unit[k] = v
	}
	return nil
}

// CreateUnit creates a unit and returns its new domain identifier.
func (s *Store) CreateUnit(_ context.Context, values map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	unit := make(map[string]any, len(values)+1)
	for k, v := range values {
		unit[k] = v
	}
	unit[store.FieldID] = id
	s.units[id] = unit
	return id, nil
}

// DeleteUnit deletes a unit and removes it from any apartment linkage, the
// way a linked-record store drops links to a deleted record.
func (s *Store) DeleteUnit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[id]; !ok {
		return errors.NewNotFoundError("unit", id)
	}
	delete(s.units, id)
	for _, apt := range s.apartments {
		links, ok := apt[store.FieldUnits].([]any)
		if !ok {
			continue
		}
		kept := links[:0]
		for _, link := range links {
			if fields.Stringify(link) != id {
				kept = append(kept, link)
			}
		}
		apt[store.FieldUnits] = kept
	}
	return nil
}
