package timeline

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Service persists gateway events to a local sqlite database.
type Service struct {
	db *sql.DB
}

func NewService(dbPath string) (*Service, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline db: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Service{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *Service) DB() *sql.DB { return s.db }

func (s *Service) Close() error {
	return s.db.Close()
}

// AddEvent records evt. A missing EventID or Timestamp is filled in; an
// EventID that was already recorded is ignored so redelivered messages do not
// duplicate.
func (s *Service) AddEvent(evt *Event) error {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	// Stored timestamps compare as text, so keep them in one zone.
	evt.Timestamp = evt.Timestamp.UTC()
	res, err := s.db.Exec(`
	INSERT OR IGNORE INTO timeline (event_id, timestamp, direction, peer, kind, content, status, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		evt.EventID,
		evt.Timestamp,
		evt.Direction,
		evt.Peer,
		evt.Kind,
		evt.Content,
		evt.Status,
		evt.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert timeline event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	if id, err := res.LastInsertId(); err == nil {
		evt.ID = id
	}
	return nil
}

type FilterArgs struct {
	Peer      string
	Kind      string
	Direction string
	Limit     int
	Offset    int
	StartDate *time.Time
	EndDate   *time.Time
}

// GetEvents returns matching events, newest first.
func (s *Service) GetEvents(filter FilterArgs) ([]Event, error) {
	query := `SELECT id, event_id, timestamp, direction, peer, kind, content, status, COALESCE(metadata,'') FROM timeline WHERE 1=1`
	args := []interface{}{}

	if filter.Peer != "" {
		query += " AND peer = ?"
		args = append(args, filter.Peer)
	}
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filter.Kind)
	}
	if filter.Direction != "" {
		query += " AND direction = ?"
		args = append(args, filter.Direction)
	}
	if filter.StartDate != nil {
		query += " AND timestamp >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		query += " AND timestamp <= ?"
		args = append(args, filter.EndDate.UTC())
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		err := rows.Scan(
			&e.ID,
			&e.EventID,
			&e.Timestamp,
			&e.Direction,
			&e.Peer,
			&e.Kind,
			&e.Content,
			&e.Status,
			&e.Metadata,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Count returns the number of recorded events of the given kind, or of all
// kinds when kind is empty.
func (s *Service) Count(kind string) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM timeline`).Scan(&n)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM timeline WHERE kind = ?`, kind).Scan(&n)
	}
	return n, err
}

// Prune deletes events recorded before cutoff and returns how many were removed.
func (s *Service) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM timeline WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune timeline: %w", err)
	}
	return res.RowsAffected()
}
