package services

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"

	"github.com/coopa/backend/internal/models"
	"github.com/skip2/go-qrcode"
)

// PaymentInstruction is what a member needs to deposit into an escrow.
type PaymentInstruction struct {
	EscrowID      string `json:"escrowId"`
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	Amount        int64  `json:"amount"`
	Reference     string `json:"reference"`
}

type PaymentQRService struct {
	size int
}

func NewPaymentQRService() *PaymentQRService {
	return &PaymentQRService{size: 256}
}

// MemberShare splits the total evenly, rounding up so the shares cover it.
func MemberShare(e *models.Escrow) int64 {
	if e.MemberCount <= 0 {
		return e.TotalAmount
	}
	n := int64(e.MemberCount)
	return (e.TotalAmount + n - 1) / n
}

// Generate returns the instruction and a base64 PNG QR encoding it.
func (s *PaymentQRService) Generate(e *models.Escrow) (*PaymentInstruction, string, error) {
	if e.Account == nil || e.Status != models.EscrowCollecting {
		return nil, "", newAppError(ErrInvalidTransition, "escrow is not accepting deposits", nil)
	}

	instruction := &PaymentInstruction{
		EscrowID:      e.ID,
		BankName:      e.Account.BankName,
		AccountNumber: e.Account.AccountNumber,
		AccountName:   e.Account.AccountName,
		Amount:        MemberShare(e),
		Reference:     e.Account.Reference,
	}

	jsonData, err := json.Marshal(instruction)
	if err != nil {
		return nil, "", err
	}

	qr, err := qrcode.New(string(jsonData), qrcode.Medium)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(s.size)); err != nil {
		return nil, "", err
	}

	return instruction, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
