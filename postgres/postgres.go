package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/outboxbridge/core/backoff"
	"github.com/outboxbridge/core/log"
	"github.com/bxcodec/dbresolver/v2"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	// reconnectBackoffBase is the base delay for the reconnect rate limiter.
	// Consecutive failed reconnect attempts back off exponentially from here.
	reconnectBackoffBase = 1 * time.Second
)

var (
	// ErrInvalidConfig is returned when a Config or MigrationConfig fails validation.
	ErrInvalidConfig = errors.New("postgres: invalid configuration")

	// ErrNilContext is returned when an explicit nil context.Context is supplied.
	ErrNilContext = errors.New("postgres: context is required")

	// ErrNilClient guards every Client method against a nil receiver.
	ErrNilClient = errors.New("postgres: client is nil")

	// ErrNotConnected is returned by Primary before a successful Connect.
	ErrNotConnected = errors.New("postgres: not connected")

	// ErrInvalidDatabaseName is returned when a database name fails validateDBName.
	ErrInvalidDatabaseName = errors.New("postgres: invalid database name")

	// ErrNilMigrator guards Migrator.Up against a nil receiver.
	ErrNilMigrator = errors.New("postgres: migrator is nil")

	// ErrMigrationDirty wraps golang-migrate's dirty-version error with context.
	ErrMigrationDirty = errors.New("postgres: migration left schema in a dirty state")
)

var (
	dbOpenFn          = sql.Open
	createResolverFn  = defaultCreateResolver
	runMigrationsFn   = runMigrations

	credentialsPattern  = regexp.MustCompile(`://[^@\s]+@`)
	passwordPattern     = regexp.MustCompile(`(?i)(password=)([^\s&]+)`)
	sslKeyPattern       = regexp.MustCompile(`(?i)(sslkey=)(\S+)`)
	sslCertPattern      = regexp.MustCompile(`(?i)(sslcert=)(\S+)`)
	sslRootCertPattern  = regexp.MustCompile(`(?i)(sslrootcert=)(\S+)`)
	dbNamePattern       = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)
	dsnURLPattern       = regexp.MustCompile(`^postgres(ql)?://`)
	dsnKeyValuePattern  = regexp.MustCompile(`^[a-zA-Z_]+=\S*(\s+[a-zA-Z_]+=\S*)*$`)
)

func defaultCreateResolver(primaryDB, replicaDB *sql.DB, _ log.Logger) (_ dbresolver.DB, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("failed to create resolver: %v", recovered)
		}
	}()

	connectionDB := dbresolver.New(
		dbresolver.WithPrimaryDBs(primaryDB),
		dbresolver.WithReplicaDBs(replicaDB),
		dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB),
	)

	if connectionDB == nil {
		return nil, errors.New("resolver returned nil connection")
	}

	return connectionDB, nil
}

// Config configures a Client's connection pool to a primary/replica pair.
type Config struct {
	PrimaryDSN         string
	ReplicaDSN         string
	Logger             log.Logger
	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	if cfg.MaxOpenConnections <= 0 {
		cfg.MaxOpenConnections = defaultMaxOpenConns
	}

	if cfg.MaxIdleConnections <= 0 {
		cfg.MaxIdleConnections = defaultMaxIdleConns
	}

	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = defaultConnMaxLifetime
	}

	if cfg.ConnMaxIdleTime <= 0 {
		cfg.ConnMaxIdleTime = defaultConnMaxIdleTime
	}

	return cfg
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.PrimaryDSN) == "" {
		return fmt.Errorf("%w: primary dsn is required", ErrInvalidConfig)
	}

	if strings.TrimSpace(cfg.ReplicaDSN) == "" {
		return fmt.Errorf("%w: replica dsn is required", ErrInvalidConfig)
	}

	return nil
}

// Client is a hub which deals with postgres primary/replica connections,
// connecting lazily on first use and swapping resolvers atomically on reconnect.
type Client struct {
	cfg Config

	mu        sync.RWMutex
	primary   *sql.DB
	replica   *sql.DB
	resolver  dbresolver.DB
	connected bool

	connectAttempts    int
	lastConnectAttempt time.Time
}

// New validates cfg and returns a Client. The client does not connect until
// Connect or Resolver is called.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Client{cfg: cfg.withDefaults()}, nil
}

func (c *Client) logAtLevel(ctx context.Context, level log.Level, msg string, fields ...log.Field) {
	if c == nil || c.cfg.Logger == nil {
		return
	}

	c.cfg.Logger.Log(ctx, level, msg, fields...)
}

// Connect establishes (or re-establishes) the primary/replica connection pool.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	if ctx == nil {
		return ErrNilContext
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked(ctx)
}

// connectLocked performs the actual connection. Caller must hold c.mu write lock.
func (c *Client) connectLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before database connection: %w", err)
	}

	warnInsecureDSN(ctx, c.cfg.Logger, c.cfg.PrimaryDSN, "primary")
	warnInsecureDSN(ctx, c.cfg.Logger, c.cfg.ReplicaDSN, "replica")

	primaryDB, err := dbOpenFn("pgx", c.cfg.PrimaryDSN)
	if err != nil {
		return newSanitizedError(err, "failed to open database")
	}

	primaryDB.SetMaxOpenConns(c.cfg.MaxOpenConnections)
	primaryDB.SetMaxIdleConns(c.cfg.MaxIdleConnections)
	primaryDB.SetConnMaxLifetime(c.cfg.ConnMaxLifetime)
	primaryDB.SetConnMaxIdleTime(c.cfg.ConnMaxIdleTime)

	var success bool

	defer func() {
		if !success {
			_ = primaryDB.Close()
		}
	}()

	replicaDB, err := dbOpenFn("pgx", c.cfg.ReplicaDSN)
	if err != nil {
		return newSanitizedError(err, "failed to open database")
	}

	replicaDB.SetMaxOpenConns(c.cfg.MaxOpenConnections)
	replicaDB.SetMaxIdleConns(c.cfg.MaxIdleConnections)
	replicaDB.SetConnMaxLifetime(c.cfg.ConnMaxLifetime)
	replicaDB.SetConnMaxIdleTime(c.cfg.ConnMaxIdleTime)

	defer func() {
		if !success {
			_ = replicaDB.Close()
		}
	}()

	resolver, err := createResolverFn(primaryDB, replicaDB, c.cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to create resolver: %w", err)
	}

	if err := resolver.PingContext(ctx); err != nil {
		_ = resolver.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	oldResolver := c.resolver
	c.resolver = resolver
	c.primary = primaryDB
	c.replica = replicaDB
	c.connected = true
	c.connectAttempts = 0

	if oldResolver != nil {
		if err := oldResolver.Close(); err != nil {
			c.logAtLevel(ctx, log.LevelWarn, "failed to close previous connection before reconnect", log.Err(err))
		}
	}

	success = true

	c.logAtLevel(ctx, log.LevelInfo, "connected to postgres")

	return nil
}

// recordConnectFailureLocked tracks a failed connectLocked attempt so Resolver
// can rate-limit the next lazy reconnect. Caller must hold c.mu write lock.
func (c *Client) recordConnectFailureLocked() {
	c.connectAttempts++
	c.lastConnectAttempt = time.Now()
}

// Resolver returns the active dbresolver.DB, connecting lazily on first call.
func (c *Client) Resolver(ctx context.Context) (dbresolver.DB, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	if ctx == nil {
		return nil, ErrNilContext
	}

	c.mu.RLock()

	if c.resolver != nil {
		resolver := c.resolver
		c.mu.RUnlock()

		return resolver, nil
	}

	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolver != nil {
		return c.resolver, nil
	}

	if c.connectAttempts > 0 {
		delay := backoff.ExponentialWithJitter(reconnectBackoffBase, c.connectAttempts)
		if elapsed := time.Since(c.lastConnectAttempt); elapsed < delay {
			return nil, fmt.Errorf("postgres: rate-limited, retry in %s", delay-elapsed)
		}
	}

	if err := c.connectLocked(ctx); err != nil {
		c.recordConnectFailureLocked()
		return nil, err
	}

	return c.resolver, nil
}

// Primary returns the primary *sql.DB once connected.
func (c *Client) Primary() (*sql.DB, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected || c.primary == nil {
		return nil, ErrNotConnected
	}

	return c.primary, nil
}

// IsConnected reports whether the client has connected and not been closed
// since. It does not probe the server.
func (c *Client) IsConnected() (bool, error) {
	if c == nil {
		return false, ErrNilClient
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.connected, nil
}

// Close releases every resource the client holds. It is safe to call more
// than once and tolerates a resolver that doesn't itself close the
// primary/replica handles it wraps.
func (c *Client) Close() error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	if c.resolver != nil {
		if err := c.resolver.Close(); err != nil {
			errs = append(errs, err)
		}

		c.resolver = nil
	}

	if err := closeDB(c.primary); err != nil {
		errs = append(errs, err)
	}

	c.primary = nil

	if err := closeDB(c.replica); err != nil {
		errs = append(errs, err)
	}

	c.replica = nil
	c.connected = false

	return errors.Join(errs...)
}

func closeDB(db *sql.DB) error {
	if db == nil {
		return nil
	}

	return db.Close()
}

// MigrationConfig configures a Migrator run against a single database.
type MigrationConfig struct {
	PrimaryDSN           string
	DatabaseName         string
	MigrationsPath       string
	Component            string
	AllowMultiStatements bool
	Logger               log.Logger
}

func (cfg MigrationConfig) withDefaults() MigrationConfig {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	return cfg
}

func (cfg MigrationConfig) validate() error {
	if strings.TrimSpace(cfg.PrimaryDSN) == "" {
		return fmt.Errorf("%w: primary dsn is required", ErrInvalidConfig)
	}

	if err := validateDBName(cfg.DatabaseName); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.MigrationsPath) == "" && strings.TrimSpace(cfg.Component) == "" {
		return fmt.Errorf("%w: migrations path or component is required", ErrInvalidConfig)
	}

	return nil
}

// Migrator runs golang-migrate migrations against a single primary connection.
type Migrator struct {
	cfg MigrationConfig
}

// NewMigrator validates cfg and returns a Migrator.
func NewMigrator(cfg MigrationConfig) (*Migrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Migrator{cfg: cfg.withDefaults()}, nil
}

func (m *Migrator) logAtLevel(ctx context.Context, level log.Level, msg string, fields ...log.Field) {
	if m == nil || m.cfg.Logger == nil {
		return
	}

	m.cfg.Logger.Log(ctx, level, msg, fields...)
}

// Up resolves the migrations path, opens a dedicated connection, and runs
// every pending migration against it.
func (m *Migrator) Up(ctx context.Context) error {
	if m == nil {
		return ErrNilMigrator
	}

	if ctx == nil {
		return ErrNilContext
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before migration: %w", err)
	}

	path, err := resolveMigrationsPath(m.cfg.MigrationsPath, m.cfg.Component)
	if err != nil {
		return err
	}

	db, err := dbOpenFn("pgx", m.cfg.PrimaryDSN)
	if err != nil {
		return newSanitizedError(err, "failed to open database")
	}
	defer db.Close()

	return runMigrationsFn(ctx, db, path, m.cfg.DatabaseName, m.cfg.AllowMultiStatements, m.cfg.Logger)
}

func warnInsecureDSN(ctx context.Context, logger log.Logger, dsn, label string) {
	if logger == nil {
		return
	}

	if validateDSN(dsn) != nil {
		return
	}

	if strings.Contains(strings.ToLower(dsn), "sslmode=disable") {
		logger.Log(ctx, log.LevelWarn, "database dsn disables tls verification", log.String("connection", label))
	}
}

func validateDSN(dsn string) error {
	if dsn == "" {
		return nil
	}

	if dsnURLPattern.MatchString(dsn) {
		return nil
	}

	if dsnKeyValuePattern.MatchString(strings.TrimSpace(dsn)) {
		return nil
	}

	return fmt.Errorf("%w: unrecognized dsn format", ErrInvalidConfig)
}

func sanitizeSensitiveString(msg string) string {
	sanitized := credentialsPattern.ReplaceAllString(msg, "://***@")
	sanitized = passwordPattern.ReplaceAllString(sanitized, "${1}***")
	sanitized = sslKeyPattern.ReplaceAllString(sanitized, "${1}***")
	sanitized = sslCertPattern.ReplaceAllString(sanitized, "${1}***")
	sanitized = sslRootCertPattern.ReplaceAllString(sanitized, "${1}***")

	return sanitized
}

// SanitizedError wraps a connection error with its credentials scrubbed.
// Unwrap deliberately returns nil so errors.Is/As can never traverse back to
// the credential-bearing cause.
type SanitizedError struct {
	message string
}

func newSanitizedError(cause error, prefix string) *SanitizedError {
	if cause == nil {
		return nil
	}

	return &SanitizedError{message: prefix + ": " + sanitizeSensitiveString(cause.Error())}
}

func (e *SanitizedError) Error() string { return e.message }

func (e *SanitizedError) Unwrap() error { return nil }

func sanitizePath(path string) (string, error) {
	cleaned := filepath.Clean(path)
	parts := strings.Split(cleaned, string(filepath.Separator))

	for _, part := range parts {
		if part == ".." {
			return "", fmt.Errorf("invalid migrations path: %q", path)
		}
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	return absPath, nil
}

func resolveMigrationsPath(explicitPath, component string) (string, error) {
	if explicitPath != "" {
		return sanitizePath(explicitPath)
	}

	// Sanitize component to prevent path traversal (CWE-22). filepath.Base
	// strips directory components, so "../../etc" becomes "etc".
	sanitized := filepath.Base(component)
	if sanitized == "." || sanitized == string(filepath.Separator) {
		return "", fmt.Errorf("%w: invalid component name %q", ErrInvalidConfig, component)
	}

	return filepath.Abs(filepath.Join("components", sanitized, "migrations"))
}

func validateDBName(name string) error {
	if !dbNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidDatabaseName, name)
	}

	return nil
}

// migrationOutcome is the classified result of a single migrate.Up() call.
type migrationOutcome struct {
	err     error
	level   log.Level
	message string
	fields  []log.Field
}

// classifyMigrationError maps golang-migrate's sentinel errors to the
// logging level and wrapped error runMigrations should surface. A nil input
// produces a zero-value outcome (no log line, no error).
func classifyMigrationError(err error) migrationOutcome {
	if err == nil {
		return migrationOutcome{}
	}

	if errors.Is(err, migrate.ErrNoChange) {
		return migrationOutcome{level: log.LevelInfo, message: "no new migrations found, skipping"}
	}

	if errors.Is(err, os.ErrNotExist) {
		return migrationOutcome{level: log.LevelWarn, message: "no migration files found, skipping migration step"}
	}

	var dirtyErr migrate.ErrDirty
	if errors.As(err, &dirtyErr) {
		return migrationOutcome{
			err:     fmt.Errorf("%w: version %d", ErrMigrationDirty, dirtyErr.Version),
			level:   log.LevelError,
			message: "migration failed with dirty version",
			fields:  []log.Field{log.Int("version", dirtyErr.Version)},
		}
	}

	return migrationOutcome{
		err:     fmt.Errorf("migration failed: %w", err),
		level:   log.LevelError,
		message: "migration failed",
	}
}

func runMigrations(ctx context.Context, dbPrimary *sql.DB, migrationsPath, primaryDBName string, allowMultiStatements bool, logger log.Logger) error {
	logAt := func(level log.Level, msg string, fields ...log.Field) {
		if logger == nil {
			return
		}

		logger.Log(ctx, level, msg, fields...)
	}

	if err := validateDBName(primaryDBName); err != nil {
		logAt(log.LevelError, "invalid primary database name", log.Err(err))
		return err
	}

	primaryURL, err := url.Parse(filepath.ToSlash(migrationsPath))
	if err != nil {
		logAt(log.LevelError, "failed to parse migrations url", log.Err(err))
		return fmt.Errorf("failed to parse migrations url: %w", err)
	}

	primaryURL.Scheme = "file"

	primaryDriver, err := postgres.WithInstance(dbPrimary, &postgres.Config{
		MultiStatementEnabled: allowMultiStatements,
		DatabaseName:          primaryDBName,
		SchemaName:            "public",
	})
	if err != nil {
		logAt(log.LevelError, "failed to create postgres driver instance", log.Err(err))
		return fmt.Errorf("failed to create postgres driver instance: %w", err)
	}

	migration, err := migrate.NewWithDatabaseInstance(primaryURL.String(), primaryDBName, primaryDriver)
	if err != nil {
		logAt(log.LevelError, "failed to get migrations", log.Err(err))
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	outcome := classifyMigrationError(migration.Up())
	if outcome.message != "" {
		logAt(outcome.level, outcome.message, outcome.fields...)
	}

	return outcome.err
}
