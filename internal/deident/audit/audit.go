// Package audit implements the durable audit store (§4.2): a per-attribute
// mapping from (original value, study scope) to cleaned value, backed by
// an embedded SQLite database. Table schemas are versioned with goose
// for the one fixed table (study scope anchor); per-attribute tables are
// created lazily on first use, since their names and count are not known
// until attributes are actually encountered during a run.
package audit

import (
	"database/sql"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// StudyTable is the unscoped table name used as the scope anchor.
const StudyTable = "studyinstanceuid"

var nonWord = regexp.MustCompile(`\W+`)

// TableName derives a SQL table name from an attribute name: lower-cased
// with every non-word character removed (§4.2).
func TableName(attr string) string {
	return nonWord.ReplaceAllString(strings.ToLower(attr), "")
}

// execer is the subset of *sql.DB/*sql.Tx that Store's statements need.
// Every statement goes through s.conn() rather than s.db directly, so a
// run's mutations can be routed into a transaction and rolled back as a
// unit (dry-run, supplemented feature 2).
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store is the embedded SQL-backed audit store. All mutations are
// serialized through mu, matching the single-writer requirement for
// allocator ids (§5).
type Store struct {
	db *sql.DB
	tx *sql.Tx
	mu sync.Mutex

	// knownTables tracks attribute tables already created, to avoid a
	// CREATE TABLE round-trip on every save once the table exists.
	knownTables map[string]bool

	// pendingTables lists tables created since the active transaction
	// began. On rollback these are purged from knownTables, since the
	// CREATE TABLE itself is rolled back along with every row.
	pendingTables []string
}

// conn returns the active transaction if a run is in progress, or the
// bare database handle otherwise. Callers already hold s.mu.
func (s *Store) conn() execer {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// BeginRun opens a transaction that every subsequent mutation is routed
// through, until CommitRun or RollbackRun closes it. Used once per run
// so a dry-run (or an aborted run) can be undone as a unit rather than
// leaving partially-committed audit rows and consumed synthetic ids
// behind (§7, supplemented feature 2).
func (s *Store) BeginRun() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		return fmt.Errorf("audit store: run already in progress")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("audit store: begin run: %w", err)
	}
	s.tx = tx
	s.pendingTables = nil
	return nil
}

// CommitRun commits the active run transaction. A no-op if no run is in
// progress, so callers can commit unconditionally after a non-dry run.
func (s *Store) CommitRun() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	s.pendingTables = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("audit store: commit run: %w", err)
	}
	return nil
}

// RollbackRun discards every mutation made since BeginRun, including any
// attribute tables created along the way, so the store is left exactly
// as it was before the run started. Used for dry-run and for runs that
// abort (§7).
func (s *Store) RollbackRun() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	for _, table := range s.pendingTables {
		delete(s.knownTables, table)
	}
	s.pendingTables = nil
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("audit store: rollback run: %w", err)
	}
	return nil
}

// Open opens (creating if absent) a SQLite database at path and runs the
// goose migrations to bootstrap the study-scope anchor table.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit store: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit store: migrate: %w", err)
	}

	return &Store{db: db, knownTables: map[string]bool{StudyTable: true}}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// JoinOriginal serializes a multi-valued original for storage: components
// are joined with "/" so multi-valued comparators (person name lists,
// code sequences) compare deterministically (§4.2).
func JoinOriginal(components []string) string {
	return strings.Join(components, "/")
}

func (s *Store) ensureTable(attr string, scoped bool) error {
	table := TableName(attr)
	if s.knownTables[table] {
		return nil
	}

	var ddl string
	if scoped {
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			original TEXT NOT NULL,
			cleaned  TEXT NOT NULL,
			study    INTEGER REFERENCES %q(id)
		)`, table, StudyTable)
	} else {
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			original TEXT NOT NULL,
			cleaned  TEXT NOT NULL
		)`, table)
	}

	if _, err := s.conn().Exec(ddl); err != nil {
		return fmt.Errorf("audit store: create table %s: %w", table, err)
	}
	s.knownTables[table] = true
	if s.tx != nil {
		s.pendingTables = append(s.pendingTables, table)
	}
	return nil
}

// Get looks up the cleaned value for attr's original value. Study
// Instance UID is always looked up unscoped; every other attribute is
// looked up within studyPK's scope.
func (s *Store) Get(attr, original string, studyPK int64) (cleaned string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := TableName(attr)
	if table == StudyTable {
		err = s.conn().QueryRow(
			fmt.Sprintf(`SELECT cleaned FROM %q WHERE original = ?`, table), original,
		).Scan(&cleaned)
	} else {
		if err = s.ensureTable(attr, true); err != nil {
			return "", false, err
		}
		err = s.conn().QueryRow(
			fmt.Sprintf(`SELECT cleaned FROM %q WHERE original = ? AND study = ?`, table), original, studyPK,
		).Scan(&cleaned)
	}

	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("audit store: get %s: %w", attr, err)
	default:
		return cleaned, true, nil
	}
}

// Save creates the per-attribute table on first use and inserts a new
// (original, cleaned[, scope]) row.
func (s *Store) Save(attr, original, cleaned string, studyPK int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scoped := TableName(attr) != StudyTable
	if err := s.ensureTable(attr, scoped); err != nil {
		return err
	}

	table := TableName(attr)
	var err error
	if scoped {
		_, err = s.conn().Exec(
			fmt.Sprintf(`INSERT INTO %q (original, cleaned, study) VALUES (?, ?, ?)`, table),
			original, cleaned, studyPK,
		)
	} else {
		_, err = s.conn().Exec(
			fmt.Sprintf(`INSERT INTO %q (original, cleaned) VALUES (?, ?)`, table),
			original, cleaned,
		)
	}
	if err != nil {
		return fmt.Errorf("audit store: save %s: %w", attr, err)
	}
	return nil
}

// Update overwrites the cleaned column for an existing (attr, original,
// scope) row, used by the relative-date pass to replace an initial
// synthetic placeholder with the final rebased date.
func (s *Store) Update(attr, original, newCleaned string, studyPK int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := TableName(attr)
	_, err := s.conn().Exec(
		fmt.Sprintf(`UPDATE %q SET cleaned = ? WHERE original = ? AND study = ?`, table),
		newCleaned, original, studyPK,
	)
	if err != nil {
		return fmt.Errorf("audit store: update %s: %w", attr, err)
	}
	return nil
}

// NextID returns one greater than the current max id in attr's table, or
// 1 if the table does not yet exist or is empty. This is the allocator
// for the synthetic sequence number embedded in "<Attribute Name> <N>"
// replacement text.
func (s *Store) NextID(attr string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureTable(attr, true); err != nil {
		return 0, err
	}

	table := TableName(attr)
	var max sql.NullInt64
	if err := s.conn().QueryRow(fmt.Sprintf(`SELECT MAX(id) FROM %q`, table)).Scan(&max); err != nil {
		return 0, fmt.Errorf("audit store: next_id %s: %w", attr, err)
	}
	if !max.Valid {
		return 1, nil
	}
	return max.Int64 + 1, nil
}

// StudyPK returns the integer primary key of the study row whose cleaned
// Study Instance UID equals cleanedStudyUID.
func (s *Store) StudyPK(cleanedStudyUID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pk int64
	err := s.conn().QueryRow(
		fmt.Sprintf(`SELECT id FROM %q WHERE cleaned = ?`, StudyTable), cleanedStudyUID,
	).Scan(&pk)
	if err != nil {
		return 0, fmt.Errorf("audit store: study_pk: %w", err)
	}
	return pk, nil
}

// Reverse looks up the original value that produced a given cleaned
// value in attr's scoped table, for auditors re-identifying a cleaned
// dataset. Supplemented beyond the core operations named in the spec.
func (s *Store) Reverse(attr, cleaned string, studyPK int64) (original string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := TableName(attr)
	if table == StudyTable {
		err = s.conn().QueryRow(
			fmt.Sprintf(`SELECT original FROM %q WHERE cleaned = ?`, table), cleaned,
		).Scan(&original)
	} else {
		if err = s.ensureTable(attr, true); err != nil {
			return "", false, err
		}
		err = s.conn().QueryRow(
			fmt.Sprintf(`SELECT original FROM %q WHERE cleaned = ? AND study = ?`, table), cleaned, studyPK,
		).Scan(&original)
	}

	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("audit store: reverse %s: %w", attr, err)
	default:
		return original, true, nil
	}
}
