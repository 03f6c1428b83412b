package services

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/coopa/backend/internal/models"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
)

// gatewayBIC identifies the escrow account holder in settlement advice.
const gatewayBIC = "MONINGLA"

const (
	MessageTypePacs008 = "pacs.008.001.08"
	MessageTypePacs002 = "pacs.002.001.10"
)

// SettlementAdviceService renders ISO 20022 records of escrow settlements
// for supplier reconciliation.
type SettlementAdviceService struct {
	currency string
	now      func() time.Time
}

func NewSettlementAdviceService(currency string) *SettlementAdviceService {
	if currency == "" {
		currency = "NGN"
	}
	return &SettlementAdviceService{currency: currency, now: time.Now}
}

func koboToMajor(amount int64) float64 {
	return float64(amount) / 100
}

// CreatePacs008 describes the supplier payout of a released escrow.
func (s *SettlementAdviceService) CreatePacs008(e *models.Escrow) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if e.Status != models.EscrowReleased {
		return nil, newAppError(ErrInvalidTransition, "settlement advice is only available once the escrow is released", nil)
	}

	msgId := uuid.New().String()
	creDtTm := s.now()
	settlementDate := creDtTm
	if e.ReleasedAt != nil {
		settlementDate = *e.ReleasedAt
	}
	amount := koboToMajor(e.CollectedAmount)
	txID := e.SettlementTransactionID
	if txID == "" {
		txID = SettlementReference(e.ID)
	}

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(s.currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(truncate(txID, 35))}[0],
					EndToEndId: common.Max35Text(truncate(e.RequestID, 35)),
					TxId:       &[]common.Max35Text{common.Max35Text(truncate(txID, 35))}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(s.currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(gatewayBIC)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(accountName(e))}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(e.SupplierBankCode),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(e.SupplierName)}[0],
				},
			},
		},
	}

	return doc, nil
}

// CreatePacs002 reports the settlement status of an escrow: ACSC once
// released, PDNG while the gateway confirms, RJCT after a failed attempt.
func (s *SettlementAdviceService) CreatePacs002(e *models.Escrow) (*pacs_v08.FIToFIPaymentStatusReportV08, error) {
	var status string
	switch {
	case e.Status == models.EscrowReleased:
		status = "ACSC"
	case e.Status == models.EscrowPlatformApproved:
		status = "PDNG"
	case e.LastSettlementError != "":
		status = "RJCT"
	default:
		return nil, newAppError(ErrInvalidTransition, "escrow has no settlement attempt", nil)
	}

	msgId := uuid.New().String()
	txID := e.SettlementTransactionID
	if txID == "" {
		txID = SettlementReference(e.ID)
	}

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(s.now()),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(truncate(txID, 35))}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(truncate(e.RequestID, 35))}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(truncate(txID, 35))}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}

	return doc, nil
}

// ConvertToXML converts ISO20022 document to XML string
func (s *SettlementAdviceService) ConvertToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

func accountName(e *models.Escrow) string {
	if e.Account != nil && e.Account.AccountName != "" {
		return e.Account.AccountName
	}
	return "Coopa Escrow " + e.ID
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
