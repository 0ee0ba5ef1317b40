package accounts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/multiplycharity/multiply-monorepo/internal/dbx"
	"github.com/multiplycharity/multiply-monorepo/internal/server/models"
)

const uniqueViolation = "23505"

const selectAccount = `SELECT id, identity, password_hash, address,
		encrypted_data_key, data_key_iv, encrypted_mnemonic, mnemonic_iv,
		kdf_params, session_key, version, created_at, updated_at
	 FROM accounts
	`

// PostgresRepository works over dbx.DBTX, so it runs the same against a
// *sql.DB or inside a transaction.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	kdf, err := json.Marshal(a.KDF)
	if err != nil {
		return nil, fmt.Errorf("encode kdf params: %w", err)
	}

	query :=
		`INSERT INTO accounts (identity, password_hash, address,
			encrypted_data_key, data_key_iv, encrypted_mnemonic, mnemonic_iv,
			kdf_params, session_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (identity) DO NOTHING
		 RETURNING id, version, created_at, updated_at
		 `

	out := a.Clone()
	err = r.db.QueryRowContext(ctx, query,
		a.Identity, a.PasswordHash, a.Address,
		a.Envelope.EncryptedDataKey, a.Envelope.DataKeyIV,
		a.Envelope.EncryptedMnemonic, a.Envelope.MnemonicIV,
		string(kdf), a.SessionKey,
	).Scan(&out.ID, &out.Version, &out.CreatedAt, &out.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return nil, common.ErrAccountExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) GetByIdentity(ctx context.Context, identity string) (*models.Account, error) {
	return r.get(ctx, selectAccount+` WHERE identity = $1`, identity)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.get(ctx, selectAccount+` WHERE id = $1`, id)
}

func (r *PostgresRepository) get(ctx context.Context, query string, arg string) (*models.Account, error) {
	a := &models.Account{}
	var kdf []byte
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.Identity, &a.PasswordHash, &a.Address,
		&a.Envelope.EncryptedDataKey, &a.Envelope.DataKeyIV,
		&a.Envelope.EncryptedMnemonic, &a.Envelope.MnemonicIV,
		&kdf, &a.SessionKey, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(kdf, &a.KDF); err != nil {
		return nil, fmt.Errorf("db error: kdf params: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) UpdateSessionKey(ctx context.Context, id string, key []byte) error {
	query :=
		`UPDATE accounts SET session_key = $2, version = version + 1, updated_at = now()
		 WHERE id = $1
		 `
	return r.exec(ctx, query, id, key)
}

func (r *PostgresRepository) UpdateAddress(ctx context.Context, id string, address string) error {
	query :=
		`UPDATE accounts SET address = $2, version = version + 1, updated_at = now()
		 WHERE id = $1
		 `
	return r.exec(ctx, query, id, address)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
