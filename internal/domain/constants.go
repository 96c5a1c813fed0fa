package domain

const (
	TxKindDeposit    = "deposit"
	TxKindWithdrawal = "withdrawal"
	TxKindSwap       = "swap"
	TxKindInvestment = "investment"
	TxKindPayout     = "payout"

	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"

	// Investment statuses
	InvestmentStatusActive    = "active"
	InvestmentStatusCompleted = "completed"
	InvestmentStatusCancelled = "cancelled"

	// Reference prefixes written to transactions.reference.
	RefPrefixDeposit    = "DP"
	RefPrefixWithdrawal = "WD"
	RefPrefixSwap       = "SWAP"
	RefPrefixInvestment = "INV"
	RefPrefixPayout     = "PAYOUT"

	// Metadata keys
	MetaToAddress        = "to_address"
	MetaToCurrency       = "to_currency"
	MetaToAmount         = "to_amount"
	MetaRate             = "rate"
	MetaPlanID           = "plan_id"
	MetaPlanName         = "plan_name"
	MetaInvestmentID     = "investment_id"
	MetaReason           = "reason"
	MetaInputAmount      = "input_amount"
	MetaInputFiat        = "input_currency"
	MetaBalanceAtRequest = "balance_at_request"

	RoleAdmin = "admin"
	RoleUser  = "user"
)

// IsTransactionKind reports whether kind is one of the known transaction kinds.
func IsTransactionKind(kind string) bool {
	switch kind {
	case TxKindDeposit, TxKindWithdrawal, TxKindSwap, TxKindInvestment, TxKindPayout:
		return true
	}
	return false
}

// IsTransactionStatus reports whether status is one of the known transaction statuses.
func IsTransactionStatus(status string) bool {
	switch status {
	case TxStatusPending, TxStatusCompleted, TxStatusFailed:
		return true
	}
	return false
}
