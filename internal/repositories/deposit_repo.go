package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/surprise-envelope/backend/internal/models"
)

var ErrNotFound = errors.New("not found")

type DepositRepo struct {
	pool *pgxpool.Pool
}

func NewDepositRepo(pool *pgxpool.Pool) *DepositRepo {
	return &DepositRepo{pool: pool}
}

const depositColumns = `
	id, chain_id, vault_address, deposit_index, tx_hash, block_number, amount_units,
	sender_address, key_address, status, source, claim_tx_hash, recipient_address,
	created_at, claimed_at`

func scanDeposit(row pgx.Row) (*models.Deposit, error) {
	var d models.Deposit
	err := row.Scan(&d.ID, &d.ChainID, &d.VaultAddress, &d.DepositIndex, &d.TxHash, &d.BlockNumber, &d.AmountUnits,
		&d.SenderAddress, &d.KeyAddress, &d.Status, &d.Source, &d.ClaimTxHash, &d.RecipientAddress,
		&d.CreatedAt, &d.ClaimedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Upsert records a deposit. The resolver and the indexer may both see the
// same deposit; a later write only fills in a missing key address.
func (r *DepositRepo) Upsert(ctx context.Context, d *models.Deposit) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO deposits (chain_id, vault_address, deposit_index, tx_hash, block_number, amount_units,
		                      sender_address, key_address, status, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'deposited', $9)
		ON CONFLICT (chain_id, vault_address, deposit_index) DO UPDATE
		SET key_address = COALESCE(deposits.key_address, EXCLUDED.key_address)
		RETURNING id, status, created_at
	`, d.ChainID, d.VaultAddress, d.DepositIndex, d.TxHash, d.BlockNumber, d.AmountUnits,
		d.SenderAddress, d.KeyAddress, d.Source).Scan(&d.ID, &d.Status, &d.CreatedAt)
}

func (r *DepositRepo) GetByIndex(ctx context.Context, chainID int64, vault string, index int64) (*models.Deposit, error) {
	return scanDeposit(r.pool.QueryRow(ctx, `
		SELECT `+depositColumns+`
		FROM deposits WHERE chain_id = $1 AND vault_address = $2 AND deposit_index = $3
	`, chainID, vault, index))
}

func (r *DepositRepo) GetByTxHash(ctx context.Context, txHash string) (*models.Deposit, error) {
	return scanDeposit(r.pool.QueryRow(ctx, `
		SELECT `+depositColumns+`
		FROM deposits WHERE tx_hash = $1
		ORDER BY deposit_index LIMIT 1
	`, txHash))
}

// MarkClaimed moves a deposit to claimed. Returns false when the deposit was
// unknown or already claimed.
func (r *DepositRepo) MarkClaimed(ctx context.Context, chainID int64, vault string, index int64, claimTxHash, recipient string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE deposits SET status = 'claimed', claimed_at = now(), claim_tx_hash = $1, recipient_address = $2
		WHERE chain_id = $3 AND vault_address = $4 AND deposit_index = $5 AND status = 'deposited'
	`, claimTxHash, recipient, chainID, vault, index)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
