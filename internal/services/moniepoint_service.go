package services

import (
	"context"
	"log"

	"github.com/coopa/backend/internal/moniepoint"
)

type VirtualAccountInput struct {
	RequestID string `json:"requestId" validate:"required,max=128"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	CoopName  string `json:"coopName" validate:"required,max=140"`
}

type BalanceInput struct {
	AccountNumber string `json:"accountNumber" validate:"required,nuban"`
}

// MoniepointService exposes direct gateway operations to authenticated
// callers.
type MoniepointService struct {
	gateway moniepoint.Gateway
}

func NewMoniepointService(gateway moniepoint.Gateway) *MoniepointService {
	return &MoniepointService{gateway: gateway}
}

func (s *MoniepointService) CreateVirtualAccount(ctx context.Context, in VirtualAccountInput) (*moniepoint.VirtualAccount, error) {
	if err := gatewayReady(s.gateway); err != nil {
		return nil, err
	}
	acct, err := s.gateway.CreateVirtualAccount(ctx, in.RequestID, in.Amount, in.CoopName)
	if err != nil {
		return nil, gatewayError("create virtual account", err)
	}
	log.Printf("[MONIEPOINT] Virtual account %s created for request %s", acct.AccountNumber, in.RequestID)
	return acct, nil
}

func (s *MoniepointService) CheckBalance(ctx context.Context, in BalanceInput) (*moniepoint.Balance, error) {
	if err := gatewayReady(s.gateway); err != nil {
		return nil, err
	}
	balance, err := s.gateway.CheckBalance(ctx, in.AccountNumber)
	if err != nil {
		return nil, gatewayError("check balance", err)
	}
	return balance, nil
}
