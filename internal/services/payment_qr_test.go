package services

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image/png"
	"testing"

	"github.com/coopa/backend/internal/models"
	"github.com/coopa/backend/internal/moniepoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMemberShare(t *testing.T) {
	assert.Equal(t, int64(3334), MemberShare(&models.Escrow{TotalAmount: 10000, MemberCount: 3}))
	assert.Equal(t, int64(5000), MemberShare(&models.Escrow{TotalAmount: 10000, MemberCount: 2}))
	assert.Equal(t, int64(10000), MemberShare(&models.Escrow{TotalAmount: 10000}))
}

func TestPaymentQRService_Generate(t *testing.T) {
	svc := NewPaymentQRService()
	e := &models.Escrow{
		ID:          "esc-1",
		TotalAmount: 10000,
		MemberCount: 4,
		Status:      models.EscrowCollecting,
		Account: &models.VirtualAccount{
			AccountNumber: escrowAccount,
			AccountName:   "Coopa Escrow - req-1",
			BankName:      "Moniepoint MFB",
			Reference:     "COOPA-req-1",
		},
	}

	instruction, encoded, err := svc.Generate(e)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), instruction.Amount)
	assert.Equal(t, escrowAccount, instruction.AccountNumber)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())

	e.Status = models.EscrowReleased
	_, _, err = svc.Generate(e)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMoniepointService(t *testing.T) {
	ctx := t.Context()

	t.Run("not configured", func(t *testing.T) {
		svc := NewMoniepointService(nil)
		_, err := svc.CheckBalance(ctx, BalanceInput{AccountNumber: escrowAccount})
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("gateway failure is generic", func(t *testing.T) {
		gw := &MockGateway{}
		gw.On("CheckBalance", mock.Anything, escrowAccount).Return(nil, errors.New("upstream said no")).Once()
		svc := NewMoniepointService(gw)

		_, err := svc.CheckBalance(ctx, BalanceInput{AccountNumber: escrowAccount})
		assert.ErrorIs(t, err, ErrGateway)
		var appErr *AppError
		require.ErrorAs(t, err, &appErr)
		assert.NotContains(t, appErr.Message, "upstream said no")
	})

	t.Run("creates account", func(t *testing.T) {
		gw := &MockGateway{}
		gw.On("CreateVirtualAccount", mock.Anything, "req-9", int64(5000), "Ikeja Farmers").
			Return(&moniepoint.VirtualAccount{AccountNumber: escrowAccount, BankName: moniepoint.BankName}, nil).Once()
		svc := NewMoniepointService(gw)

		acct, err := svc.CreateVirtualAccount(ctx, VirtualAccountInput{RequestID: "req-9", Amount: 5000, CoopName: "Ikeja Farmers"})
		require.NoError(t, err)
		assert.Equal(t, escrowAccount, acct.AccountNumber)
		gw.AssertExpectations(t)
	})
}
