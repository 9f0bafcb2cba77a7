package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/chenBenjamin97/rink-minimap/pkg/repository"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

type SQLExecutor interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
	Rebind(query string) string
}

//Connect opens a pool on dsn and checks it answers
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

//Migrate creates the schema when it is missing
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func New(db *sqlx.DB, log logrus.FieldLogger) repository.Repository {
	return &postgresRepository{
		DB:  db,
		log: log,
	}
}

type postgresRepository struct {
	DB  *sqlx.DB
	log logrus.FieldLogger
}

func (r *postgresRepository) NewClient(ctx context.Context, tx bool) (repository.Client, error) {
	if !tx {
		c := r.client(r.DB)
		c.Begin = func(ctx context.Context) (repository.Client, error) {
			return r.NewClient(ctx, true)
		}
		c.Commit = func() error { return nil }
		c.Rollback = func() error { return nil }
		return c, nil
	}

	txx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return repository.Client{}, fmt.Errorf("begin transaction: %w", err)
	}
	c := r.client(txx)
	c.Begin = r.savepoint(txx, 1)
	c.Commit = txx.Commit
	c.Rollback = txx.Rollback
	return c, nil
}

//savepointName is the name of the savepoint at the given nesting depth
func savepointName(depth int) string {
	return fmt.Sprintf("minimap_sp_%d", depth)
}

//savepoint returns a Begin that opens a child transaction of tx as a SAVEPOINT.
//Committing the child releases it, rolling back returns tx to the state before it.
func (r *postgresRepository) savepoint(tx *sqlx.Tx, depth int) func(ctx context.Context) (repository.Client, error) {
	return func(ctx context.Context) (repository.Client, error) {
		name := savepointName(depth)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
			return repository.Client{}, fmt.Errorf("savepoint %s: %w", name, err)
		}

		c := r.client(tx)
		c.Begin = r.savepoint(tx, depth+1)
		c.Commit = func() error {
			_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
			return err
		}
		c.Rollback = func() error {
			_, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
			return err
		}
		return c, nil
	}
}

func (r *postgresRepository) client(q SQLExecutor) repository.Client {
	return repository.Client{
		Videos:     &videosRepository{q: q, log: r.log},
		MapData:    &mapDataRepository{q: q, log: r.log},
		Subsets:    &subsetsRepository{q: q, log: r.log},
		Frames:     &framesRepository{q: q, log: r.log},
		PlayerData: &playerDataRepository{q: q, log: r.log},
		Dataset:    &datasetRepository{q: q, log: r.log},
		Aliases:    &aliasesRepository{q: q, log: r.log},
	}
}

//named binds a named query for q's driver
func named(q SQLExecutor, query string, arg interface{}) (string, []interface{}, error) {
	bound, args, err := sqlx.Named(query, arg)
	if err != nil {
		return "", nil, err
	}
	return q.Rebind(bound), args, nil
}
