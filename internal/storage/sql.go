package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/mawaqit/internal/catalog"
	"github.com/rewired-gh/mawaqit/internal/models"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS prayer_cache (
	cache_key       TEXT PRIMARY KEY,
	day             TEXT NOT NULL,
	lat_e           BIGINT NOT NULL,
	lon_e           BIGINT NOT NULL,
	coord_precision INTEGER NOT NULL,
	method_id       INTEGER NOT NULL,
	madhab_id       INTEGER NOT NULL,
	variant         TEXT NOT NULL DEFAULT '',
	latitude        DOUBLE PRECISION NOT NULL,
	longitude       DOUBLE PRECISION NOT NULL,
	fajr            BIGINT NOT NULL,
	dhuhr           BIGINT NOT NULL,
	asr             BIGINT NOT NULL,
	maghrib         BIGINT NOT NULL,
	isha            BIGINT NOT NULL,
	sunrise         BIGINT NOT NULL,
	sunset          BIGINT NOT NULL,
	computed_at     BIGINT NOT NULL,
	stored_at       BIGINT NOT NULL
)`

const createCacheLocationIndex = `
CREATE INDEX IF NOT EXISTS prayer_cache_location
	ON prayer_cache (day, lat_e, lon_e, coord_precision)`

const cacheColumns = `cache_key, day, lat_e, lon_e, coord_precision, method_id, madhab_id, variant,
	latitude, longitude, fajr, dhuhr, asr, maghrib, isha, sunrise, sunset, computed_at, stored_at`

const upsertCacheRow = `
INSERT INTO prayer_cache (` + cacheColumns + `)
VALUES (:cache_key, :day, :lat_e, :lon_e, :coord_precision, :method_id, :madhab_id, :variant,
	:latitude, :longitude, :fajr, :dhuhr, :asr, :maghrib, :isha, :sunrise, :sunset, :computed_at, :stored_at)
ON CONFLICT (cache_key) DO UPDATE SET
	fajr = excluded.fajr,
	dhuhr = excluded.dhuhr,
	asr = excluded.asr,
	maghrib = excluded.maghrib,
	isha = excluded.isha,
	sunrise = excluded.sunrise,
	sunset = excluded.sunset,
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	computed_at = excluded.computed_at,
	stored_at = excluded.stored_at`

// cacheRow is the persisted schema of one entry. Instants are Unix seconds.
type cacheRow struct {
	CacheKey   string  `db:"cache_key"`
	Day        string  `db:"day"`
	LatE       int64   `db:"lat_e"`
	LonE       int64   `db:"lon_e"`
	Precision  int     `db:"coord_precision"`
	MethodID   int     `db:"method_id"`
	MadhabID   int     `db:"madhab_id"`
	Variant    string  `db:"variant"`
	Latitude   float64 `db:"latitude"`
	Longitude  float64 `db:"longitude"`
	Fajr       int64   `db:"fajr"`
	Dhuhr      int64   `db:"dhuhr"`
	Asr        int64   `db:"asr"`
	Maghrib    int64   `db:"maghrib"`
	Isha       int64   `db:"isha"`
	Sunrise    int64   `db:"sunrise"`
	Sunset     int64   `db:"sunset"`
	ComputedAt int64   `db:"computed_at"`
	StoredAt   int64   `db:"stored_at"`
}

func rowFromEntry(e Entry) cacheRow {
	s := e.Set
	return cacheRow{
		CacheKey:   e.Key.String(),
		Day:        e.Key.Date.String(),
		LatE:       e.Key.LatE,
		LonE:       e.Key.LonE,
		Precision:  e.Key.Precision,
		MethodID:   int(e.Key.Method),
		MadhabID:   int(e.Key.Madhab),
		Variant:    e.Key.Variant,
		Latitude:   s.Coordinates.Latitude,
		Longitude:  s.Coordinates.Longitude,
		Fajr:       s.Get(models.Fajr).Unix(),
		Dhuhr:      s.Get(models.Dhuhr).Unix(),
		Asr:        s.Get(models.Asr).Unix(),
		Maghrib:    s.Get(models.Maghrib).Unix(),
		Isha:       s.Get(models.Isha).Unix(),
		Sunrise:    s.Sunrise.Unix(),
		Sunset:     s.Sunset.Unix(),
		ComputedAt: s.ComputedAt.Unix(),
		StoredAt:   e.StoredAt.Unix(),
	}
}

func (r cacheRow) entry() (Entry, error) {
	date, err := models.ParseDate(r.Day)
	if err != nil {
		return Entry{}, err
	}
	key := Key{
		Date:      date,
		LatE:      r.LatE,
		LonE:      r.LonE,
		Precision: r.Precision,
		Method:    catalog.MethodID(r.MethodID),
		Madhab:    catalog.MadhabID(r.MadhabID),
		Variant:   r.Variant,
	}
	unix := func(sec int64) time.Time { return time.Unix(sec, 0).UTC() }
	set := models.PrayerTimeSet{
		Date:        date,
		Coordinates: models.Coordinates{Latitude: r.Latitude, Longitude: r.Longitude},
		Method:      key.Method,
		Madhab:      key.Madhab,
		Sunrise:     unix(r.Sunrise),
		Sunset:      unix(r.Sunset),
		ComputedAt:  unix(r.ComputedAt),
	}
	for i, sec := range []int64{r.Fajr, r.Dhuhr, r.Asr, r.Maghrib, r.Isha} {
		set.Times[i] = models.PrayerTime{Prayer: models.Prayers[i], Time: unix(sec)}
	}
	return Entry{Key: key, Set: set, StoredAt: unix(r.StoredAt)}, nil
}

// SQLTier persists entries in a SQL table through sqlx. SQLite (modernc, pure Go)
// and PostgreSQL (lib/pq) share one schema.
type SQLTier struct {
	db     *sqlx.DB
	driver string
	// SQLite allows one writer; serialize writes on this tier.
	writeMu sync.Mutex
}

// OpenSQLTier connects to dsn with driver and creates the schema if needed.
func OpenSQLTier(ctx context.Context, driver, dsn string) (*SQLTier, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	t := &SQLTier{db: db, driver: driver}
	if err := t.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

// NewSQLTier wraps an existing connection. The schema is created if needed.
func NewSQLTier(ctx context.Context, db *sqlx.DB) (*SQLTier, error) {
	t := &SQLTier{db: db, driver: db.DriverName()}
	if err := t.migrate(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *SQLTier) migrate(ctx context.Context) error {
	for _, stmt := range []string{createCacheTable, createCacheLocationIndex} {
		if _, err := t.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate cache table: %w", err)
		}
	}
	return nil
}

// Name identifies the tier in logs.
func (t *SQLTier) Name() string {
	return t.driver
}

// Get retrieves an entry by key.
func (t *SQLTier) Get(ctx context.Context, key Key) (Entry, bool, error) {
	var row cacheRow
	q := t.db.Rebind(`SELECT ` + cacheColumns + ` FROM prayer_cache WHERE cache_key = ?`)
	err := t.db.GetContext(ctx, &row, q, key.String())
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to read cache row: %w", err)
	}
	e, err := row.entry()
	if err != nil {
		return Entry{}, false, fmt.Errorf("corrupt cache row %s: %w", row.CacheKey, err)
	}
	return e, true, nil
}

// Put upserts entry.
func (t *SQLTier) Put(ctx context.Context, entry Entry) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.db.NamedExecContext(ctx, upsertCacheRow, rowFromEntry(entry)); err != nil {
		return fmt.Errorf("failed to write cache row: %w", err)
	}
	return nil
}

// Delete removes the row for key.
func (t *SQLTier) Delete(ctx context.Context, key Key) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	q := t.db.Rebind(`DELETE FROM prayer_cache WHERE cache_key = ?`)
	if _, err := t.db.ExecContext(ctx, q, key.String()); err != nil {
		return fmt.Errorf("failed to delete cache row: %w", err)
	}
	return nil
}

// Latest returns the most recently stored row at key's date and location.
func (t *SQLTier) Latest(ctx context.Context, key Key) (Entry, bool, error) {
	var row cacheRow
	q := t.db.Rebind(`SELECT ` + cacheColumns + ` FROM prayer_cache
		WHERE day = ? AND lat_e = ? AND lon_e = ? AND coord_precision = ?
		ORDER BY stored_at DESC LIMIT 1`)
	err := t.db.GetContext(ctx, &row, q, key.Date.String(), key.LatE, key.LonE, key.Precision)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to scan cache rows: %w", err)
	}
	e, err := row.entry()
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Len returns the number of rows.
func (t *SQLTier) Len(ctx context.Context) (int, error) {
	var n int
	if err := t.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM prayer_cache`); err != nil {
		return 0, fmt.Errorf("failed to count cache rows: %w", err)
	}
	return n, nil
}

// Close closes the connection pool.
func (t *SQLTier) Close() error {
	return t.db.Close()
}
