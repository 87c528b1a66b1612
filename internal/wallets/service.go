package wallets

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/bazario/bazario-backend/pkg/db"
	"github.com/bazario/bazario-backend/pkg/db/models"
	"github.com/bazario/bazario-backend/pkg/enums"
	pkgerrors "github.com/bazario/bazario-backend/pkg/errors"
	"github.com/bazario/bazario-backend/pkg/money"
)

var (
	// ErrInvalidAmount rejects non-positive credit/debit amounts.
	ErrInvalidAmount = pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	// ErrInsufficientBalance rejects debits that would overdraw the wallet.
	ErrInsufficientBalance = pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient wallet balance")
)

// MovementInput describes one credit or debit against a user's wallet.
type MovementInput struct {
	OwnerUserID uuid.UUID
	Amount      decimal.Decimal
	Source      enums.TransactionSource
	ReferenceID string
	Description string
}

// Service is the append-only wallet ledger. Every balance change commits
// together with its transaction row.
type Service interface {
	Credit(ctx context.Context, input MovementInput) error
	CreditTx(ctx context.Context, tx *gorm.DB, input MovementInput) error
	Debit(ctx context.Context, input MovementInput) error
	DebitTx(ctx context.Context, tx *gorm.DB, input MovementInput) error
	GetBalance(ctx context.Context, ownerUserID uuid.UUID) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, ownerUserID uuid.UUID) ([]models.WalletTransaction, error)
}

type service struct {
	repo     Repository
	txRunner dbpkg.TxRunner
}

// NewService wires a wallet service with its repository and tx runner.
func NewService(repo Repository, txRunner dbpkg.TxRunner) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wallet repository required")
	}
	if txRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &service{repo: repo, txRunner: txRunner}, nil
}

func (s *service) Credit(ctx context.Context, input MovementInput) error {
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.CreditTx(ctx, tx, input)
	})
}

// CreditTx runs the credit inside the caller's transaction; the payout
// engine uses it so wallet movement and settlement state commit atomically.
func (s *service) CreditTx(ctx context.Context, tx *gorm.DB, input MovementInput) error {
	if err := validateMovement(input); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)

	wallet, err := repo.GetOrCreate(ctx, input.OwnerUserID)
	if err != nil {
		return err
	}
	if err := repo.AddToBalance(ctx, wallet.ID, input.Amount); err != nil {
		return err
	}
	return repo.AppendTransaction(ctx, &models.WalletTransaction{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Amount:      input.Amount,
		Type:        enums.TransactionTypeCredit,
		Source:      input.Source,
		ReferenceID: input.ReferenceID,
		Description: input.Description,
	})
}

func (s *service) Debit(ctx context.Context, input MovementInput) error {
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.DebitTx(ctx, tx, input)
	})
}

func (s *service) DebitTx(ctx context.Context, tx *gorm.DB, input MovementInput) error {
	if err := validateMovement(input); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)

	wallet, err := repo.GetOrCreate(ctx, input.OwnerUserID)
	if err != nil {
		return err
	}
	debited, err := repo.SubtractFromBalance(ctx, wallet.ID, input.Amount)
	if err != nil {
		return err
	}
	if !debited {
		return ErrInsufficientBalance
	}
	return repo.AppendTransaction(ctx, &models.WalletTransaction{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Amount:      input.Amount,
		Type:        enums.TransactionTypeDebit,
		Source:      input.Source,
		ReferenceID: input.ReferenceID,
		Description: input.Description,
	})
}

func (s *service) GetBalance(ctx context.Context, ownerUserID uuid.UUID) (decimal.Decimal, error) {
	wallet, err := s.repo.GetOrCreate(ctx, ownerUserID)
	if err != nil {
		return decimal.Zero, err
	}
	return wallet.Balance, nil
}

func (s *service) ListTransactions(ctx context.Context, ownerUserID uuid.UUID) ([]models.WalletTransaction, error) {
	wallet, err := s.repo.GetOrCreate(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, wallet.ID)
}

func validateMovement(input MovementInput) error {
	if input.OwnerUserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner user id is required")
	}
	if !money.IsPositive(input.Amount) {
		return ErrInvalidAmount
	}
	if !input.Source.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction source")
	}
	return nil
}
