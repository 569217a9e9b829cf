package custody

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/tipbot/internal/custody/migrations"
	"github.com/dmitrijs2005/tipbot/internal/dbx"
	"github.com/dmitrijs2005/tipbot/internal/solana"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresStore keeps one row per record and replaces the whole set inside a
// single transaction on save.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects with the pgx driver and checks the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, s.db, ".")
}

func (s *PostgresStore) Load(ctx context.Context) ([]Record, error) {
	query :=
		`SELECT handle, public_id, encrypted_key, salt, nonce, registered, created_at, updated_at
		 FROM custody_records
		 ORDER BY handle
		 `

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r   Record
			pub string
		)
		if err := rows.Scan(&r.Handle, &pub, &r.EncryptedKey, &r.Salt, &r.Nonce, &r.Registered, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if r.PublicID, err = solana.PublicKeyFromBase58(pub); err != nil {
			return nil, fmt.Errorf("custody record %s: %w", r.Handle, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Save(ctx context.Context, records []Record) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM custody_records`); err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		query :=
			`INSERT INTO custody_records (handle, public_id, encrypted_key, salt, nonce, registered, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 `
		for _, r := range records {
			_, err := tx.ExecContext(ctx, query,
				r.Handle, r.PublicID.String(), r.EncryptedKey, r.Salt, r.Nonce, r.Registered, r.CreatedAt, r.UpdatedAt)
			if err != nil {
				return fmt.Errorf("db error: %w", err)
			}
		}
		return nil
	})
}
