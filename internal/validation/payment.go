// Package validation содержит функции валидации платежей.
package validation

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/inflight-sales/internal/model"
)

const (
	// MsgInsufficientCash показывается, когда полученных наличных меньше суммы чека.
	MsgInsufficientCash = "The cash received must be greater than or equal to the total."
	// MsgIncompleteCard показывается, когда данные карты или место не заполнены.
	MsgIncompleteCard = "Please complete all fields"
)

// amountPattern ограничивает ввод обычной десятичной записью без экспоненты.
var amountPattern = regexp.MustCompile(`^\d{1,12}(\.\d{1,2})?$`)

// Result описывает результат проверки платежа.
type Result struct {
	Valid   bool
	Message string
}

// ParseAmount разбирает введённую сумму наличных.
// Пустая, нечисловая, отрицательная или записанная не в виде
// обычной десятичной дроби сумма считается нулём.
func ParseAmount(amount string) decimal.Decimal {
	amount = strings.TrimSpace(amount)
	if !amountPattern.MatchString(amount) {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ValidateCash проверяет, что полученных наличных достаточно для оплаты.
func ValidateCash(amount string, total decimal.Decimal) Result {
	if ParseAmount(amount).GreaterThanOrEqual(total) {
		return Result{Valid: true}
	}
	return Result{Message: MsgInsufficientCash}
}

// Change возвращает сдачу, не меньше нуля.
func Change(amount string, total decimal.Decimal) decimal.Decimal {
	change := ParseAmount(amount).Sub(total)
	if change.IsNegative() {
		return decimal.Zero
	}
	return change
}

// ValidateCard проверяет, что все поля карты и номер места заполнены.
// Контрольная цифра и срок действия не проверяются.
func ValidateCard(card model.CardData, hasSeat bool) Result {
	if hasSeat && IsComplete(card) {
		return Result{Valid: true}
	}
	return Result{Message: MsgIncompleteCard}
}

// IsComplete сообщает, заполнены ли все поля карты.
func IsComplete(card model.CardData) bool {
	return !IsBlank(card.Number) &&
		!IsBlank(card.ExpirationDate) &&
		!IsBlank(card.CVV) &&
		!IsBlank(card.HolderName)
}

// IsBlank сообщает, состоит ли строка только из пробельных символов.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
