package enums

import "fmt"

// TransactionType marks the direction of a wallet transaction.
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeCredit,
	TransactionTypeDebit,
}

// IsValid reports whether the value is a known TransactionType.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// TransactionSource records which money flow produced a wallet transaction.
type TransactionSource string

const (
	TransactionSourceOrderPayment TransactionSource = "order_payment"
	TransactionSourceCommission   TransactionSource = "commission"
	TransactionSourcePayout       TransactionSource = "payout"
	TransactionSourceRefund       TransactionSource = "refund"
	TransactionSourceAdjustment   TransactionSource = "adjustment"
)

var validTransactionSources = []TransactionSource{
	TransactionSourceOrderPayment,
	TransactionSourceCommission,
	TransactionSourcePayout,
	TransactionSourceRefund,
	TransactionSourceAdjustment,
}

// IsValid reports whether the value is a known TransactionSource.
func (s TransactionSource) IsValid() bool {
	for _, candidate := range validTransactionSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTransactionSource converts raw input into a TransactionSource.
func ParseTransactionSource(value string) (TransactionSource, error) {
	for _, candidate := range validTransactionSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction source %q", value)
}
