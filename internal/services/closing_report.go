package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odontoclin/backend/internal/models"
)

// Revenue split applied to each professional's same-day inflow.
var (
	professionalCut = decimal.RequireFromString("0.7")
	clinicCut       = decimal.RequireFromString("0.3")
)

// ComposeClosingReport builds the WhatsApp closing report. Operators read
// this text daily, so the wording and currency format are fixed: Brazilian
// Portuguese labels, dd/MM/yyyy date, "R$ " amounts with two decimals.
func ComposeClosingReport(reg *models.CashRegister, shares []models.ProfessionalShare) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*Relatório de Fechamento de Caixa* - %s\n\n", reg.CreatedAt.Format("02/01/2006"))
	fmt.Fprintf(&b, "Valor de Abertura: R$ %s\n", reg.Opening.StringFixed(2))
	fmt.Fprintf(&b, "Total em Entradas: R$ %s\n", reg.Inflow.StringFixed(2))
	fmt.Fprintf(&b, "Total em Saídas: R$ %s\n", reg.Outflow.StringFixed(2))
	fmt.Fprintf(&b, "Valor Final do Fechamento: R$ %s\n", reg.Closing.StringFixed(2))

	for _, share := range shares {
		fmt.Fprintf(&b, "\n*%s*\n", share.Name)
		fmt.Fprintf(&b, "Receita: R$ %s\n", share.Revenue.StringFixed(2))
		fmt.Fprintf(&b, "Profissional: R$ %s\n", share.Professional.StringFixed(2))
		fmt.Fprintf(&b, "Clínica: R$ %s\n", share.Clinic.StringFixed(2))
	}

	return b.String()
}
