package wallets

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/bazario/bazario-backend/pkg/db"
	"github.com/bazario/bazario-backend/pkg/db/models"
)

// Repository manages persistence for wallets and their transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetOrCreate(ctx context.Context, ownerUserID uuid.UUID) (*models.Wallet, error)
	FindByOwner(ctx context.Context, ownerUserID uuid.UUID) (*models.Wallet, error)
	AddToBalance(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error
	SubtractFromBalance(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (bool, error)
	AppendTransaction(ctx context.Context, txn *models.WalletTransaction) error
	ListTransactions(ctx context.Context, walletID uuid.UUID) ([]models.WalletTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByOwner(ctx context.Context, ownerUserID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerUserID).
		First(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// GetOrCreate creates the wallet lazily on first use. A concurrent create
// loses on the owner uniqueness index and falls back to reading the winner.
func (r *repository) GetOrCreate(ctx context.Context, ownerUserID uuid.UUID) (*models.Wallet, error) {
	wallet, err := r.FindByOwner(ctx, ownerUserID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := &models.Wallet{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		Balance:     decimal.Zero,
	}
	if err := r.db.WithContext(ctx).Create(created).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_wallets_owner_user_id") {
			return r.FindByOwner(ctx, ownerUserID)
		}
		return nil, err
	}
	return created, nil
}

func (r *repository) AddToBalance(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]any{
			"balance":      gorm.Expr("balance + ?", amount),
			"last_updated": time.Now().UTC(),
		}).Error
}

// SubtractFromBalance debits the wallet only when the balance covers the
// amount. The guarded single-statement update is the serialization point
// for concurrent movements on one wallet; a false return means the balance
// was insufficient and nothing changed.
func (r *repository) SubtractFromBalance(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND balance >= ?", walletID, amount).
		Updates(map[string]any{
			"balance":      gorm.Expr("balance - ?", amount),
			"last_updated": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) AppendTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]models.WalletTransaction, error) {
	var txns []models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}
