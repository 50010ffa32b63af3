package reminder

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Language selects the message templates
type Language string

const (
	LanguageEnglish    Language = "en"
	LanguagePortuguese Language = "pt"
)

type messages struct {
	installment   string
	subscription  string
	subscriptions string
	dueToday      string
	dueInDays     string // %d is the number of days
	dueTomorrow   string
}

var catalog = map[Language]messages{
	LanguageEnglish: {
		installment:   "Installment",
		subscription:  "Subscription",
		subscriptions: "Subscriptions",
		dueToday:      "due today",
		dueTomorrow:   "due tomorrow",
		dueInDays:     "due in %d days",
	},
	LanguagePortuguese: {
		installment:   "Parcela",
		subscription:  "Assinatura",
		subscriptions: "Assinaturas",
		dueToday:      "vence hoje",
		dueTomorrow:   "vence amanhã",
		dueInDays:     "vence em %d dias",
	},
}

var currencySymbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
	"BRL": "R$",
	"JPY": "¥",
	"CHF": "CHF",
	"CAD": "C$",
	"AUD": "A$",
	"RUB": "₽",
}

func messagesFor(lang Language) messages {
	if m, ok := catalog[lang]; ok {
		return m
	}
	return catalog[LanguageEnglish]
}

func (m messages) due(daysBefore int) string {
	switch daysBefore {
	case 0:
		return m.dueToday
	case 1:
		return m.dueTomorrow
	default:
		return fmt.Sprintf(m.dueInDays, daysBefore)
	}
}

// FormatAmount renders an amount with its currency symbol and two decimals.
// Unknown currencies are prefixed with their code.
func FormatAmount(amount decimal.Decimal, currency string) string {
	currency = strings.ToUpper(currency)
	if currency == "" {
		currency = "EUR"
	}
	symbol, ok := currencySymbols[currency]
	if !ok {
		return currency + " " + amount.StringFixed(2)
	}
	return symbol + amount.StringFixed(2)
}

func installmentContent(lang Language, base string, index, total, daysBefore int, amount decimal.Decimal, currency string) (string, string) {
	m := messagesFor(lang)
	title := fmt.Sprintf("%s %s", m.installment, m.due(daysBefore))
	body := fmt.Sprintf("%s (%d/%d) · %s", base, index, total, FormatAmount(amount, currency))
	return title, body
}

func subscriptionContent(lang Language, description string, daysBefore int, amount decimal.Decimal, currency string) (string, string) {
	m := messagesFor(lang)
	if strings.TrimSpace(description) == "" {
		description = m.subscriptions
	}
	title := fmt.Sprintf("%s %s", m.subscription, m.due(daysBefore))
	body := fmt.Sprintf("%s · %s", description, FormatAmount(amount, currency))
	return title, body
}
