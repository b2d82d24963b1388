package flightlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const defaultMaxBatchSize = 100

// WithMaxBatchSize sets how many cycle records are buffered before they are
// written out in a single transaction.
func WithMaxBatchSize(size int) func(*SqliteStore) {
	return func(s *SqliteStore) {
		if size > 0 {
			s.maxBatchSize = size
		}
	}
}

// SqliteStore implements Writer and Reader on a sqlite database. Writes are
// buffered and flushed in batched transactions so the control loop never
// waits on per-row fsyncs.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error

	maxBatchSize int

	mu      sync.Mutex
	pending []pendingRecord
}

type pendingRecord struct {
	flightID int64
	rec      Record
}

// NewSqliteStore creates a store for the given database path. Connections
// are opened lazily on first use.
func NewSqliteStore(dbPath string, options ...func(*SqliteStore)) *SqliteStore {
	s := &SqliteStore{
		dbPath:       dbPath,
		maxBatchSize: defaultMaxBatchSize,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, schemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateFlight(ctx context.Context, config any) (flightID int64, err error) {
	var configData sql.NullString

	if config != nil {
		switch v := config.(type) {
		case string:
			configData.Valid = true
			configData.String = v

		case []byte:
			configData.Valid = true
			configData.String = string(v)

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}

			configData.Valid = true
			configData.String = string(p)
		}
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertFlightSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, uuid.NewString(), configData)
	if err != nil {
		err = fmt.Errorf("inserting flight: %w", err)
		return
	}

	flightID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting flight ID: %w", err)
	}
	return
}

func (s *SqliteStore) StoreRecord(ctx context.Context, flightID int64, rec *Record) error {
	s.mu.Lock()
	s.pending = append(s.pending, pendingRecord{flightID: flightID, rec: *rec})
	full := len(s.pending) >= s.maxBatchSize
	s.mu.Unlock()

	if !full {
		return nil
	}
	return s.Flush(ctx)
}

// Flush writes all buffered records in one transaction.
func (s *SqliteStore) Flush(ctx context.Context) (err error) {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, insertCycleSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, p := range batch {
		rec := p.rec
		_, err = stmt.ExecContext(ctx,
			p.flightID,
			rec.Timestamp.UTC(),
			rec.FlightTime,
			toNullFloat(rec.RawAltitude),
			toNullFloat(rec.AccelX),
			toNullFloat(rec.AccelY),
			toNullFloat(rec.AccelZ),
			rec.FilteredAltitude,
			rec.FilteredVelocity,
			rec.FilteredAccel,
			rec.Phase,
			rec.Extension,
			rec.ServoAngle,
			rec.Stale,
			rec.Overrun,
		)
		if err != nil {
			return fmt.Errorf("inserting cycle record: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) Flight(ctx context.Context, id int64) (flight *Flight, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectFlightSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var f Flight
	var config sql.NullString
	if err = stmt.QueryRowContext(ctx, id).Scan(&f.ID, &f.UUID, &f.StartTime, &config); err != nil {
		err = fmt.Errorf("scanning flight: %w", err)
		return
	}
	if config.Valid {
		f.Config = &config.String
	}
	return &f, nil
}

func (s *SqliteStore) Flights(ctx context.Context) (flights []*Flight, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectFlightsSQL)
	if err != nil {
		err = fmt.Errorf("querying flights: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var f Flight
		var config sql.NullString
		if err = rows.Scan(&f.ID, &f.UUID, &f.StartTime, &config); err != nil {
			err = fmt.Errorf("scanning flight: %w", err)
			return
		}
		if config.Valid {
			f.Config = &config.String
		}
		flights = append(flights, &f)
	}
	return flights, rows.Err()
}

func (s *SqliteStore) Records(ctx context.Context, flightID int64) (records []*Record, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectCyclesSQL, flightID)
	if err != nil {
		err = fmt.Errorf("querying cycle records: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var rec Record
		var rawAlt, ax, ay, az sql.NullFloat64
		if err = rows.Scan(
			&rec.Timestamp,
			&rec.FlightTime,
			&rawAlt,
			&ax,
			&ay,
			&az,
			&rec.FilteredAltitude,
			&rec.FilteredVelocity,
			&rec.FilteredAccel,
			&rec.Phase,
			&rec.Extension,
			&rec.ServoAngle,
			&rec.Stale,
			&rec.Overrun,
		); err != nil {
			err = fmt.Errorf("scanning cycle record: %w", err)
			return
		}
		rec.RawAltitude = fromNullFloat(rawAlt)
		rec.AccelX = fromNullFloat(ax)
		rec.AccelY = fromNullFloat(ay)
		rec.AccelZ = fromNullFloat(az)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Close flushes pending records and closes both connections. Safe to call
// multiple times.
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		flushErr := s.Flush(context.Background())

		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(flushErr, writeErr, readErr)
	})

	return s.closeErr
}
