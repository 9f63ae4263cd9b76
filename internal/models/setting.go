package models

// Setting is a named configuration value kept in the database so operators
// can change it without redeploying.
type Setting struct {
	Name  string `json:"name" db:"name"`
	Value string `json:"value" db:"value"`
}

// Well-known setting names.
const (
	SettingWhatsAppNumber = "whatsapp_number"
	SettingAsaasKey       = "asaas_key"
	SettingInvoiceMessage = "msg_boleto"
)
