package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"ztuff-backend/internal/model"
)

// 支付方式
const (
	TypeBankTransfer = "bank_transfer"
	TypeCreditCard   = "credit_card"
	TypeEWallet      = "e-wallet"
	TypeCStore       = "cstore"
	TypeEChannel     = "echannel"
)

// Method 各支付方式特有的字段，只在网关边界使用
type Method interface {
	PaymentType() string
	// Display 面向客服展示的支付凭证（虚拟账号、卡号后四位等）
	Display() string
}

type BankTransfer struct {
	VANumbers []struct {
		Bank     string `json:"bank"`
		VANumber string `json:"va_number"`
	} `json:"va_numbers"`
	PermataVANumber string `json:"permata_va_number"`
}

func (BankTransfer) PaymentType() string { return TypeBankTransfer }

func (b BankTransfer) Display() string {
	if len(b.VANumbers) > 0 {
		return b.VANumbers[0].Bank + ":" + b.VANumbers[0].VANumber
	}
	return "permata:" + b.PermataVANumber
}

type CreditCard struct {
	MaskedCard   string `json:"masked_card"`
	ApprovalCode string `json:"approval_code"`
	Bank         string `json:"bank"`
}

func (CreditCard) PaymentType() string { return TypeCreditCard }
func (c CreditCard) Display() string   { return c.MaskedCard }

type EWallet struct {
	Issuer   string `json:"issuer"`
	Acquirer string `json:"acquirer"`
}

func (EWallet) PaymentType() string { return TypeEWallet }
func (e EWallet) Display() string   { return e.Issuer }

type CStore struct {
	Store       string `json:"store"`
	PaymentCode string `json:"payment_code"`
}

func (CStore) PaymentType() string { return TypeCStore }
func (c CStore) Display() string   { return c.Store + ":" + c.PaymentCode }

type EChannel struct {
	BillKey    string `json:"bill_key"`
	BillerCode string `json:"biller_code"`
}

func (EChannel) PaymentType() string { return TypeEChannel }
func (e EChannel) Display() string   { return e.BillerCode + ":" + e.BillKey }

// Notification 解码后的网关通知
type Notification struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	PaymentType       string `json:"payment_type"`
	Method            Method `json:"-"`
}

// DecodeNotification 按 payment_type 选择具体的支付方式结构
func DecodeNotification(raw []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("invalid notification payload: %w", err)
	}
	if n.OrderID == "" || n.TransactionStatus == "" {
		return nil, fmt.Errorf("notification is missing order_id or transaction_status")
	}

	var method Method
	switch n.PaymentType {
	case TypeBankTransfer:
		var m BankTransfer
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		method = m
	case TypeCreditCard:
		var m CreditCard
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		method = m
	case TypeEWallet, "gopay", "shopeepay", "qris":
		var m EWallet
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		if m.Issuer == "" {
			m.Issuer = n.PaymentType
		}
		n.PaymentType = TypeEWallet
		method = m
	case TypeCStore:
		var m CStore
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		method = m
	case TypeEChannel:
		var m EChannel
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		method = m
	default:
		return nil, fmt.Errorf("unsupported payment type %q", n.PaymentType)
	}
	n.Method = method
	return &n, nil
}

// VerifySignature sha512(order_id + status_code + gross_amount + server_key)
func (n *Notification) VerifySignature(serverKey string) bool {
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + serverKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(n.SignatureKey)) == 1
}

// Normalize 转换为核心流程使用的统一结构
func (n *Notification) Normalize() model.PaymentNotification {
	return model.PaymentNotification{
		OrderNumber:       n.OrderID,
		PaymentType:       n.PaymentType,
		PaymentReference:  n.TransactionID,
		TransactionStatus: n.TransactionStatus,
		FraudStatus:       n.FraudStatus,
		GrossAmount:       n.GrossAmount,
	}
}

// Sign 生成通知签名，供测试和模拟网关使用
func Sign(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}
