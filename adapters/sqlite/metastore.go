package sqlite

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/domain/names"
	"github.com/artpar/dataforge/domain/values"
	"github.com/artpar/dataforge/ports"
)

// fixed width so that text order is time order
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type uuidGen struct{}

func (uuidGen) New() string { return uuid.NewString() }

// Option configures a MetaStore.
type Option func(*MetaStore)

// WithClock sets the clock stamping new snapshots.
func WithClock(c ports.Clock) Option {
	return func(s *MetaStore) { s.clock = c }
}

// WithIDGenerator sets the snapshot id generator.
func WithIDGenerator(g ports.IDGenerator) Option {
	return func(s *MetaStore) { s.ids = g }
}

// MetaStore implements ports.MetaStore with one row per flattened value.
type MetaStore struct {
	db    *DB
	clock ports.Clock
	ids   ports.IDGenerator
}

// NewMetaStore creates a new meta store. The database must be migrated.
func NewMetaStore(db *DB, opts ...Option) *MetaStore {
	s := &MetaStore{db: db, clock: systemClock{}, ids: uuidGen{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores the flattened values of m in one transaction.
func (s *MetaStore) Save(ctx context.Context, name string, m meta.Meta) (ports.Snapshot, error) {
	if name == "" {
		return ports.Snapshot{}, errors.New("save snapshot: empty name")
	}
	sealed := meta.Seal(m)
	entries := meta.Flatten(sealed)
	snap := ports.Snapshot{
		ID:        s.ids.New(),
		Name:      name,
		Meta:      sealed,
		Values:    len(entries),
		CreatedAt: s.clock.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ports.Snapshot{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO meta_snapshots (id, name, value_count, created_at) VALUES (?, ?, ?, ?)`,
		snap.ID, snap.Name, snap.Values, snap.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return ports.Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO meta_values (snapshot_id, position, name, kind, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return ports.Snapshot{}, fmt.Errorf("prepare values: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		c, err := encodeCell(e.Value)
		if err != nil {
			return ports.Snapshot{}, fmt.Errorf("encode %s: %w", e.Name, err)
		}
		if _, err := stmt.ExecContext(ctx, snap.ID, i, e.Name.String(), c.Kind, c.Text); err != nil {
			return ports.Snapshot{}, fmt.Errorf("insert %s: %w", e.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ports.Snapshot{}, fmt.Errorf("commit snapshot: %w", err)
	}
	return snap, nil
}

// Get loads a snapshot by id.
func (s *MetaStore) Get(ctx context.Context, id string) (ports.Snapshot, error) {
	snap, err := s.header(ctx,
		`SELECT id, name, value_count, created_at FROM meta_snapshots WHERE id = ?`, id)
	if err != nil {
		return ports.Snapshot{}, err
	}
	return s.withValues(ctx, snap)
}

// Latest loads the most recent snapshot of name.
func (s *MetaStore) Latest(ctx context.Context, name string) (ports.Snapshot, error) {
	snap, err := s.header(ctx,
		`SELECT id, name, value_count, created_at FROM meta_snapshots
		 WHERE name = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, name)
	if err != nil {
		return ports.Snapshot{}, err
	}
	return s.withValues(ctx, snap)
}

// List returns snapshot headers, newest first.
func (s *MetaStore) List(ctx context.Context, name string) ([]ports.Snapshot, error) {
	query := `SELECT id, name, value_count, created_at FROM meta_snapshots`
	var args []any
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var result []ports.Snapshot
	for rows.Next() {
		snap, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

// Delete removes a snapshot and its values.
func (s *MetaStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM meta_values WHERE snapshot_id = ?`, id); err != nil {
		return fmt.Errorf("delete values: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM meta_snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ports.ErrNotFound
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHeader(row scanner) (ports.Snapshot, error) {
	var snap ports.Snapshot
	var createdAt string
	if err := row.Scan(&snap.ID, &snap.Name, &snap.Values, &createdAt); err != nil {
		return ports.Snapshot{}, err
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return ports.Snapshot{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	snap.CreatedAt = t
	return snap, nil
}

func (s *MetaStore) header(ctx context.Context, query string, arg any) (ports.Snapshot, error) {
	snap, err := scanHeader(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Snapshot{}, ports.ErrNotFound
	}
	return snap, err
}

func (s *MetaStore) withValues(ctx context.Context, snap ports.Snapshot) (ports.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, kind, value FROM meta_values WHERE snapshot_id = ? ORDER BY position`, snap.ID)
	if err != nil {
		return ports.Snapshot{}, fmt.Errorf("query values: %w", err)
	}
	defer rows.Close()

	b := meta.NewBuilder()
	for rows.Next() {
		var rawName string
		var c cell
		if err := rows.Scan(&rawName, &c.Kind, &c.Text); err != nil {
			return ports.Snapshot{}, err
		}
		name, err := names.Parse(rawName)
		if err != nil {
			return ports.Snapshot{}, fmt.Errorf("stored name %q: %w", rawName, err)
		}
		v, err := decodeCell(c)
		if err != nil {
			return ports.Snapshot{}, fmt.Errorf("stored value %s: %w", rawName, err)
		}
		b.PutName(name, v)
	}
	if err := rows.Err(); err != nil {
		return ports.Snapshot{}, err
	}
	snap.Meta = b.Seal()
	return snap, nil
}

// cell is the text form of a value. Integers and floats use distinct kinds
// so a float with no fraction survives the round trip.
type cell struct {
	Kind string `json:"k"`
	Text string `json:"v"`
}

const (
	kindNull   = "null"
	kindBool   = "boolean"
	kindInt    = "int"
	kindFloat  = "float"
	kindString = "string"
	kindBinary = "binary"
	kindList   = "list"
)

func encodeCell(v values.Value) (cell, error) {
	switch x := v.(type) {
	case values.Null:
		return cell{Kind: kindNull}, nil
	case values.Bool:
		return cell{Kind: kindBool, Text: x.String()}, nil
	case values.Number:
		if x.IsInt() {
			return cell{Kind: kindInt, Text: strconv.FormatInt(x.Int64(), 10)}, nil
		}
		return cell{Kind: kindFloat, Text: strconv.FormatFloat(x.Float64(), 'g', -1, 64)}, nil
	case values.String:
		return cell{Kind: kindString, Text: string(x)}, nil
	case values.Binary:
		return cell{Kind: kindBinary, Text: base64.StdEncoding.EncodeToString(x)}, nil
	case values.List:
		items := make([]cell, len(x))
		for i, item := range x {
			c, err := encodeCell(item)
			if err != nil {
				return cell{}, err
			}
			items[i] = c
		}
		b, err := json.Marshal(items)
		if err != nil {
			return cell{}, err
		}
		return cell{Kind: kindList, Text: string(b)}, nil
	default:
		return cell{}, fmt.Errorf("unsupported value %T", v)
	}
}

func decodeCell(c cell) (values.Value, error) {
	switch c.Kind {
	case kindNull:
		return values.Null{}, nil
	case kindBool:
		b, err := strconv.ParseBool(c.Text)
		return values.Bool(b), err
	case kindInt:
		i, err := strconv.ParseInt(c.Text, 10, 64)
		return values.Int(i), err
	case kindFloat:
		f, err := strconv.ParseFloat(c.Text, 64)
		return values.Float(f), err
	case kindString:
		return values.String(c.Text), nil
	case kindBinary:
		b, err := base64.StdEncoding.DecodeString(c.Text)
		return values.Binary(b), err
	case kindList:
		var items []cell
		if err := json.Unmarshal([]byte(c.Text), &items); err != nil {
			return nil, err
		}
		list := make(values.List, len(items))
		for i, item := range items {
			v, err := decodeCell(item)
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", c.Kind)
	}
}

// Ensure interface compliance.
var _ ports.MetaStore = (*MetaStore)(nil)
