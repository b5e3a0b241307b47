// Package sqlite provides a SQLite-backed Store. Records keep their dynamic
// field sets as JSON documents, so the field schema can evolve without
// migrations.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, no CGO required

	"github.com/havenly/unitwise/internal/store/schema"
	"github.com/havenly/unitwise/pkg/errors"
	"github.com/havenly/unitwise/pkg/fields"
	"github.com/havenly/unitwise/pkg/forms"
	"github.com/havenly/unitwise/pkg/logging"
	"github.com/havenly/unitwise/pkg/store"
)

// Store is a SQLite-backed implementation of store.Store. Reads run
// concurrently under WAL; writes serialize on the mutex since SQLite
// supports a single writer.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	schema    *fields.Schema
	aptIndex  map[string]fields.Field
	unitIndex map[string]fields.Field
}

// Option configures a Store.
type Option func(*Store) error

// WithSchema sets the field schema instead of the embedded default.
func WithSchema(s *fields.Schema) Option {
	return func(st *Store) error {
		if s == nil {
			return errors.NewValidationError("schema", nil, "schema cannot be nil")
		}
		st.schema = s
		return nil
	}
}

// New opens (creating if needed) the database at path.
func New(path string, opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.WrapStore("open", "database", path, err)
	}

	// One writer at a time; WAL lets readers proceed alongside it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, errors.WrapStore("migrate", "database", path, err)
	}

	st := &Store{db: db}
	for _, opt := range opts {
		if err := opt(st); err != nil {
			db.Close()
			return nil, err
		}
	}
	if st.schema == nil {
		s, err := schema.Default()
		if err != nil {
			db.Close()
			return nil, err
		}
		st.schema = s
	}
	st.aptIndex = st.schema.ApartmentIndex()
	st.unitIndex = st.schema.UnitIndex()

	logging.Debug().Str("path", path).Msg("Opened housing database")
	return st, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS apartments (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS units (
		id TEXT PRIMARY KEY,
		temp_id TEXT NOT NULL DEFAULT '',
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_units_temp_id ON units(temp_id);
	CREATE TABLE IF NOT EXISTS responses (
		id TEXT PRIMARY KEY,
		campaign TEXT NOT NULL,
		submitted_at TEXT NOT NULL,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_responses_campaign ON responses(campaign);
	CREATE TABLE IF NOT EXISTS rejects (
		key TEXT PRIMARY KEY
	);
	`
	_, err := db.Exec(query)
	return err
}

// record adapts one row's JSON document to store.Record.
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
	return fields.Canonical(f, v)
}

func (r *record) Get(field string) any {
	return r.values[field]
}

func (s *Store) rowRecord(id, data string, index map[string]fields.Field) (*record, error) {
	values := make(map[string]any)
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, errors.WrapParse("json", "record "+id, err)
	}
	return &record{id: id, values: values, index: index}, nil
}

// Apartment returns an apartment record by domain identifier.
func (s *Store) Apartment(ctx context.Context, id string) (store.Record, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM apartments WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WrapStore("get", "apartment", id, err)
	}
	rec, err := s.rowRecord(id, data, s.aptIndex)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Unit returns a unit record by domain identifier.
func (s *Store) Unit(ctx context.Context, id string) (store.Record, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM units WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WrapStore("get", "unit", id, err)
	}
	rec, err := s.rowRecord(id, data, s.unitIndex)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// UnitByTempID returns the unit stamped with the given temp-id marker.
func (s *Store) UnitByTempID(ctx context.Context, tempID string) (store.Record, bool, error) {
	var id, data string
	err := s.db.QueryRowContext(ctx, `SELECT id, data FROM units WHERE temp_id = ?`, tempID).Scan(&id, &data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WrapStore("get", "unit", tempID, err)
	}
	rec, err := s.rowRecord(id, data, s.unitIndex)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Units returns all unit records ordered by ID.
func (s *Store) Units(ctx context.Context) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM units ORDER BY id`)
	if err != nil {
		return nil, errors.WrapStore("list", "units", "", err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, errors.WrapStore("scan", "unit", "", err)
		}
		rec, err := s.rowRecord(id, data, s.unitIndex)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ApartmentFields returns the apartment table's field metadata.
func (s *Store) ApartmentFields(_ context.Context) ([]fields.Field, error) {
	return s.schema.Apartment, nil
}

// UnitFields returns the units table's field metadata.
func (s *Store) UnitFields(_ context.Context) ([]fields.Field, error) {
	return s.schema.Unit, nil
}

// Submissions returns a campaign's form responses ordered by submission
// time. Undecodable payloads yield submissions with a nil payload.
func (s *Store) Submissions(ctx context.Context, campaign string) ([]forms.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, submitted_at, payload FROM responses WHERE campaign = ? ORDER BY submitted_at, id`,
		campaign)
	if err != nil {
		return nil, errors.WrapStore("list", "responses", campaign, err)
	}
	defer rows.Close()

	var out []forms.Submission
	for rows.Next() {
		var id, submittedAt, payload string
		if err := rows.Scan(&id, &submittedAt, &payload); err != nil {
			return nil, errors.WrapStore("scan", "response", "", err)
		}
		at, err := time.Parse(time.RFC3339, submittedAt)
		if err != nil {
			return nil, errors.WrapParse("time", "response "+id, err)
		}
		sub := forms.Submission{
			ResponseID:  id,
			Campaign:    campaign,
			SubmittedAt: at,
		}
		p, err := forms.DecodePayload([]byte(payload))
		if err != nil {
			logging.Warn().Err(err).Str("response", id).Msg("Skipping undecodable form response")
		} else {
			sub.Payload = p
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// RejectMarkers returns every persisted reject marker.
func (s *Store) RejectMarkers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM rejects`)
	if err != nil {
		return nil, errors.WrapStore("list", "rejects", "", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.WrapStore("scan", "reject", "", err)
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

// AddRejectMarker persists one marker. Re-adding an existing marker is a
// no-op, keeping rejection idempotent.
func (s *Store) AddRejectMarker(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO rejects (key) VALUES (?)`, key)
	if err != nil {
		return errors.WrapStore("insert", "reject", key, err)
	}
	return nil
}

// AddResponse persists one form response.
func (s *Store) AddResponse(ctx context.Context, id, campaign string, submittedAt time.Time, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO responses (id, campaign, submitted_at, payload) VALUES (?, ?, ?, ?)`,
		id, campaign, submittedAt.UTC().Format(time.RFC3339), payload)
	if err != nil {
		return errors.WrapStore("insert", "response", id, err)
	}
	return nil
}

// UpdateApartment merges named field values into an existing apartment.
func (s *Store) UpdateApartment(ctx context.Context, id string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeRow(ctx, "apartments", "apartment", id, values)
}

// UpdateUnit merges named field values into an existing unit.
func (s *Store) UpdateUnit(ctx context.Context, id string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeRow(ctx, "units", "unit", id, values)
}

// mergeRow reads a row's JSON document, merges values in, and writes it
// back inside one transaction.
func (s *Store) mergeRow(ctx context.Context, table, resource, id string, values map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapStore("update", resource, id, err)
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx, `SELECT data FROM `+table+` WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return errors.NewNotFoundError(resource, id)
	}
	if err != nil {
		return errors.WrapStore("update", resource, id, err)
	}

	doc := make(map[string]any)
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return errors.WrapParse("json", resource+" "+id, err)
	}
	for k, v := range values {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return errors.WrapStore("update", resource, id, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET data = ? WHERE id = ?`, string(merged), id); err != nil {
		return errors.WrapStore("update", resource, id, err)
	}
	if table == "units" {
		if tempID, ok := values[store.FieldTempID]; ok {
			if _, err := tx.ExecContext(ctx, `UPDATE units SET temp_id = ? WHERE id = ?`,
				fields.Stringify(tempID), id); err != nil {
				return errors.WrapStore("update", resource, id, err)
			}
		}
	}
	return tx.Commit()
}

// CreateUnit creates a unit and returns its new domain identifier.
func (s *Store) CreateUnit(ctx context.Context, values map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	doc := make(map[string]any, len(values)+1)
	for k, v := range values {
		doc[k] = v
	}
	doc[store.FieldID] = id

	data, err := json.Marshal(doc)
	if err != nil {
		return "", errors.WrapStore("create", "unit", "", err)
	}
	tempID := fields.Stringify(doc[store.FieldTempID])

	_, err = s.db.ExecContext(ctx, `INSERT INTO units (id, temp_id, data) VALUES (?, ?, ?)`,
		id, tempID, string(data))
	if err != nil {
		return "", errors.WrapStore("create", "unit", id, err)
	}
	return id, nil
}

// DeleteUnit deletes a unit and removes it from apartment linkage.
func (s *Store) DeleteUnit(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapStore("delete", "unit", id, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM units WHERE id = ?`, id)
	if err != nil {
		return errors.WrapStore("delete", "unit", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.WrapStore("delete", "unit", id, err)
	}
	if affected == 0 {
		return errors.NewNotFoundError("unit", id)
	}

	// Scrub the deleted ID out of any apartment's linked-unit list.
	rows, err := tx.QueryContext(ctx, `SELECT id, data FROM apartments`)
	if err != nil {
		return errors.WrapStore("delete", "unit", id, err)
	}
	type pending struct{ aptID, data string }
	var updates []pending
	for rows.Next() {
		var aptID, data string
		if err := rows.Scan(&aptID, &data); err != nil {
			rows.Close()
			return errors.WrapStore("delete", "unit", id, err)
		}
		scrubbed, changed, err := removeLink(data, id)
		if err != nil {
			rows.Close()
			return err
		}
		if changed {
			updates = append(updates, pending{aptID: aptID, data: scrubbed})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return errors.WrapStore("delete", "unit", id, err)
	}
	rows.Close()

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, `UPDATE apartments SET data = ? WHERE id = ?`, u.data, u.aptID); err != nil {
			return errors.WrapStore("delete", "unit", id, err)
		}
	}
	return tx.Commit()
}

// removeLink drops unitID from the document's linked-unit list.
func removeLink(data, unitID string) (string, bool, error) {
	doc := make(map[string]any)
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return "", false, errors.WrapParse("json", "apartment", err)
	}
	links, ok := doc[store.FieldUnits].([]any)
	if !ok {
		return "", false, nil
	}
	kept := make([]any, 0, len(links))
	for _, link := range links {
		if fields.Stringify(link) != unitID {
			kept = append(kept, link)
		}
	}
	if len(kept) == len(links) {
		return "", false, nil
	}
	doc[store.FieldUnits] = kept
	out, err := json.Marshal(doc)
	if err != nil {
		return "", false, errors.WrapStore("update", "apartment", "", err)
	}
	return string(out), true, nil
}

// seed mirrors the YAML fixture shape used across store backends.
type seed struct {
	Apartments []map[string]any `yaml:"apartments"`
	Units      []map[string]any `yaml:"units"`
	Responses  []struct {
		ID          string    `yaml:"id"`
		Campaign    string    `yaml:"campaign"`
		SubmittedAt time.Time `yaml:"submitted_at"`
		Payload     string    `yaml:"payload"`
	} `yaml:"responses"`
	Rejects []string `yaml:"rejects"`
}

// Import loads a YAML fixture document into the database. Existing rows
// with matching IDs are replaced.
func (s *Store) Import(ctx context.Context, data []byte) error {
	var doc seed
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.WrapParse("yaml", "import", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapStore("import", "database", "", err)
	}
	defer tx.Rollback()

	for _, apt := range doc.Apartments {
		id := fields.Stringify(apt[store.FieldID])
		if id == "" {
			return errors.NewValidationError(store.FieldID, apt, "imported apartment missing ID")
		}
		encoded, err := json.Marshal(apt)
		if err != nil {
			return errors.WrapStore("import", "apartment", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO apartments (id, data) VALUES (?, ?)`, id, string(encoded)); err != nil {
			return errors.WrapStore("import", "apartment", id, err)
		}
	}
	for _, u := range doc.Units {
		id := fields.Stringify(u[store.FieldID])
		if id == "" {
			return errors.NewValidationError(store.FieldID, u, "imported unit missing ID")
		}
		encoded, err := json.Marshal(u)
		if err != nil {
			return errors.WrapStore("import", "unit", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO units (id, temp_id, data) VALUES (?, ?, ?)`,
			id, fields.Stringify(u[store.FieldTempID]), string(encoded)); err != nil {
			return errors.WrapStore("import", "unit", id, err)
		}
	}
	for _, r := range doc.Responses {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO responses (id, campaign, submitted_at, payload) VALUES (?, ?, ?, ?)`,
			r.ID, r.Campaign, r.SubmittedAt.UTC().Format(time.RFC3339), r.Payload); err != nil {
			return errors.WrapStore("import", "response", r.ID, err)
		}
	}
	// Dedup keeps repeated imports idempotent.
	keys := append([]string(nil), doc.Rejects...)
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO rejects (key) VALUES (?)`, key); err != nil {
			return errors.WrapStore("import", "reject", key, err)
		}
	}
	return tx.Commit()
}
