package moniepoint

const BankName = "Moniepoint MFB"

const DefaultBaseURL = "https://api.moniepoint.com/api/v1"

type VirtualAccount struct {
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	BankName      string `json:"bankName"`
	Reference     string `json:"reference"`
}

type Balance struct {
	Balance  int64  `json:"balance"`
	Currency string `json:"currency"`
	Verified bool   `json:"verified"`
}

// Transfer describes an outbound payment from a virtual account, used for
// both supplier settlement and member refunds.
type Transfer struct {
	SourceAccount            string
	Amount                   int64
	DestinationBankCode      string
	DestinationAccountNumber string
	DestinationAccountName   string
	Reference                string
}

type TransferResult struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

const (
	TransferSuccess    = "success"
	TransferPending    = "pending"
	TransferProcessing = "processing"
	TransferFailed     = "failed"
)

// Accepted reports whether the gateway took the transfer, either completed
// or still in flight.
func (r *TransferResult) Accepted() bool {
	return r.Completed() || r.InFlight()
}

func (r *TransferResult) Completed() bool {
	switch r.Status {
	case TransferSuccess, "successful", "completed":
		return true
	}
	return false
}

func (r *TransferResult) InFlight() bool {
	return r.Status == TransferPending || r.Status == TransferProcessing
}

type createAccountRequest struct {
	AccountName  string `json:"account_name"`
	Amount       int64  `json:"amount"`
	Reference    string `json:"reference"`
	CustomerName string `json:"customer_name"`
}

type createAccountResponse struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	Reference     string `json:"reference"`
}

type balanceRequest struct {
	AccountNumber string `json:"account_number"`
}

type balanceResponse struct {
	Balance float64 `json:"balance"`
}

type transferRequest struct {
	SourceAccount            string `json:"source_account"`
	Amount                   int64  `json:"amount"`
	DestinationBankCode      string `json:"destination_bank_code"`
	DestinationAccountNumber string `json:"destination_account_number"`
	DestinationAccountName   string `json:"destination_account_name"`
	Reference                string `json:"reference,omitempty"`
}

type transferResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}
