package deriv

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"copytrader/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Типы сообщений WebSocket API
const (
	MsgAuthorize   = "authorize"
	MsgTransaction = "transaction"
	MsgBuy         = "buy"
)

// Коды ошибок авторизации, при которых повторять подключение бессмысленно
var authErrorCodes = map[string]bool{
	"InvalidToken":          true,
	"AuthorizationRequired": true,
	"DisabledClient":        true,
	"PermissionDenied":      true,
	"InvalidAppID":          true,
}

// ============ Запросы ============

type authorizeRequest struct {
	Authorize string `json:"authorize"`
	ReqID     int    `json:"req_id,omitempty"`
}

type transactionSubscribeRequest struct {
	Transaction int `json:"transaction"`
	Subscribe   int `json:"subscribe"`
	ReqID       int `json:"req_id,omitempty"`
}

type buyRequest struct {
	Buy        int           `json:"buy"`
	Price      float64       `json:"price"`
	Parameters buyParameters `json:"parameters"`
	ReqID      int           `json:"req_id,omitempty"`
}

type buyParameters struct {
	Amount       float64 `json:"amount"`
	Basis        string  `json:"basis"`
	ContractType string  `json:"contract_type"`
	Currency     string  `json:"currency"`
	Symbol       string  `json:"symbol"`
	Duration     int     `json:"duration,omitempty"`
	DurationUnit string  `json:"duration_unit,omitempty"`
}

func newBuyRequest(spec models.OrderSpec) buyRequest {
	return buyRequest{
		Buy:   1,
		Price: spec.Amount,
		Parameters: buyParameters{
			Amount:       spec.Amount,
			Basis:        spec.Basis,
			ContractType: spec.ContractType,
			Currency:     spec.Currency,
			Symbol:       spec.Symbol,
			Duration:     spec.Duration,
			DurationUnit: spec.DurationUnit,
		},
	}
}

// ============ Ответы ============

// envelope - общий конверт ответа, заполнено одно из полей по msg_type
type envelope struct {
	MsgType     string             `json:"msg_type"`
	ReqID       int                `json:"req_id,omitempty"`
	Error       *APIError          `json:"error,omitempty"`
	Authorize   *authorizeResponse `json:"authorize,omitempty"`
	Buy         *buyResponse       `json:"buy,omitempty"`
	Transaction *transactionEvent  `json:"transaction,omitempty"`
}

func decodeEnvelope(data []byte) (*envelope, error) {
	env := &envelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return env, nil
}

// APIError - ошибка, присланная площадкой в поле error
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

type accountListEntry struct {
	LoginID   string     `json:"loginid"`
	Currency  string     `json:"currency"`
	Email     string     `json:"email"`
	Balance   *flexFloat `json:"balance"`
	IsVirtual flexInt    `json:"is_virtual"`
}

type authorizeResponse struct {
	LoginID     string             `json:"loginid"`
	Currency    string             `json:"currency"`
	Email       string             `json:"email"`
	Balance     *flexFloat         `json:"balance"`
	Equity      *flexFloat         `json:"equity"`
	Profit      *flexFloat         `json:"profit"`
	IsVirtual   *flexInt           `json:"is_virtual"`
	AccountList []accountListEntry `json:"account_list"`
}

type buyResponse struct {
	ContractID    flexString `json:"contract_id"`
	TransactionID flexString `json:"transaction_id"`
	BuyPrice      flexFloat  `json:"buy_price"`
	Balance       flexFloat  `json:"balance_after"`
}

type transactionEvent struct {
	Action        string     `json:"action"`
	Amount        flexFloat  `json:"amount"`
	ContractID    flexString `json:"contract_id"`
	ContractType  string     `json:"contract_type"`
	Currency      string     `json:"currency"`
	Symbol        string     `json:"symbol"`
	Duration      flexInt    `json:"duration"`
	DurationUnit  string     `json:"duration_unit"`
	TransactionID flexString `json:"transaction_id"`
	ID            flexString `json:"id"`
}

// attributes нормализует ответ authorize
//
// Поля верхнего уровня имеют приоритет, при их отсутствии берётся первая запись account_list.
// Equity по умолчанию равна балансу, loss = max(0, -profit).
func (a *authorizeResponse) attributes() *models.AccountAttributes {
	var first *accountListEntry
	if len(a.AccountList) > 0 {
		first = &a.AccountList[0]
	}

	attrs := &models.AccountAttributes{
		LoginID:  a.LoginID,
		Currency: a.Currency,
		Email:    a.Email,
	}

	if first != nil {
		if attrs.LoginID == "" {
			attrs.LoginID = first.LoginID
		}
		if attrs.Currency == "" {
			attrs.Currency = first.Currency
		}
		if attrs.Email == "" {
			attrs.Email = first.Email
		}
	}

	switch {
	case a.Balance != nil:
		attrs.Balance = float64(*a.Balance)
	case first != nil && first.Balance != nil:
		attrs.Balance = float64(*first.Balance)
	}

	attrs.Equity = attrs.Balance
	if a.Equity != nil {
		attrs.Equity = float64(*a.Equity)
	}
	if a.Profit != nil {
		attrs.Profit = float64(*a.Profit)
	}
	attrs.Loss = math.Max(0, -attrs.Profit)

	switch {
	case a.IsVirtual != nil:
		attrs.IsVirtual = *a.IsVirtual != 0
	case first != nil:
		attrs.IsVirtual = first.IsVirtual != 0
	}

	return attrs
}

// notification переводит событие потока транзакций в уведомление о сделке
//
// Списание за покупку приходит отрицательным, номинал берётся по модулю.
// Возвращает nil для служебных кадров без идентификатора транзакции.
func (t *transactionEvent) notification() *models.TradeNotification {
	id := string(t.TransactionID)
	if id == "" {
		id = string(t.ID)
	}
	if id == "" {
		return nil
	}

	return &models.TradeNotification{
		TransactionID: id,
		Action:        t.Action,
		ContractID:    string(t.ContractID),
		Symbol:        t.Symbol,
		ContractType:  t.ContractType,
		Amount:        math.Abs(float64(t.Amount)),
		Currency:      t.Currency,
		Duration:      int(t.Duration),
		DurationUnit:  t.DurationUnit,
	}
}

// ============ Гибкие типы ============
// Площадка присылает числа то числом, то строкой.

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", data)
	}
	*f = flexFloat(v)
	return nil
}

type flexInt int

func (i *flexInt) UnmarshalJSON(data []byte) error {
	var f flexFloat
	if err := f.UnmarshalJSON(data); err != nil {
		return err
	}
	*i = flexInt(f)
	return nil
}

type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	*s = flexString(bytes.Trim(data, `"`))
	return nil
}
