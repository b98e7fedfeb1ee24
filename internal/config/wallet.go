package config

import (
	"time"

	"github.com/spf13/viper"
)

// WalletConfig bounds deposit claims and reconciliation matching.
type WalletConfig struct {
	MinDepositAmount int64
	MaxDepositAmount int64
	MatchWindow      time.Duration // max distance between claim and bank record
	AmountTolerance  float64       // sub-unit rounding slack
	FetchWindowDays  int           // trailing bank-record window per pass
	BankName         string        // platform account shown in deposit instructions
	BankAccount      string
	BankHolder       string
}

// LoadWalletConfig returns wallet configuration with defaults.
func LoadWalletConfig() *WalletConfig {
	viper.SetDefault("wallet.min_deposit_amount", 1000)
	viper.SetDefault("wallet.max_deposit_amount", 10000000)
	viper.SetDefault("wallet.match_window", 48*time.Hour)
	viper.SetDefault("wallet.amount_tolerance", 1.0)
	viper.SetDefault("wallet.fetch_window_days", 7)
	viper.SetDefault("wallet.bank_name", "KB Kookmin")
	viper.SetDefault("wallet.bank_account", "000000-00-000000")
	viper.SetDefault("wallet.bank_holder", "ItemLink")

	return &WalletConfig{
		MinDepositAmount: viper.GetInt64("wallet.min_deposit_amount"),
		MaxDepositAmount: viper.GetInt64("wallet.max_deposit_amount"),
		MatchWindow:      viper.GetDuration("wallet.match_window"),
		AmountTolerance:  viper.GetFloat64("wallet.amount_tolerance"),
		FetchWindowDays:  viper.GetInt("wallet.fetch_window_days"),
		BankName:         viper.GetString("wallet.bank_name"),
		BankAccount:      viper.GetString("wallet.bank_account"),
		BankHolder:       viper.GetString("wallet.bank_holder"),
	}
}

// GatewayConfig holds credentials for the external bank and order providers.
type GatewayConfig struct {
	BankdaURL       string
	BankdaToken     string
	BankdaAccount   string
	PayActionURL    string
	PayActionAPIKey string
	Timeout         time.Duration
}

// LoadGatewayConfig returns external-provider configuration with defaults.
func LoadGatewayConfig() *GatewayConfig {
	viper.SetDefault("gateway.bankda_url", "https://api.bankda.com/v1/transactions")
	viper.SetDefault("gateway.payaction_url", "https://api.payaction.io/order")
	viper.SetDefault("gateway.timeout", 30*time.Second)

	return &GatewayConfig{
		BankdaURL:       viper.GetString("gateway.bankda_url"),
		BankdaToken:     viper.GetString("gateway.bankda_token"),
		BankdaAccount:   viper.GetString("gateway.bankda_account"),
		PayActionURL:    viper.GetString("gateway.payaction_url"),
		PayActionAPIKey: viper.GetString("gateway.payaction_api_key"),
		Timeout:         viper.GetDuration("gateway.timeout"),
	}
}

// WebhookConfig controls inbound webhook verification.
type WebhookConfig struct {
	Secret string
	// RequireSignature rejects unsigned payloads outright. Defaults to
	// false for parity with the provider, which omits the header on some
	// deliveries; enable in production.
	RequireSignature bool
}

// LoadWebhookConfig returns webhook configuration with defaults.
func LoadWebhookConfig() *WebhookConfig {
	viper.SetDefault("webhook.require_signature", false)

	return &WebhookConfig{
		Secret:           viper.GetString("webhook.secret"),
		RequireSignature: viper.GetBool("webhook.require_signature"),
	}
}

// SchedulerConfig controls the fallback reconciliation loop.
type SchedulerConfig struct {
	Interval time.Duration
	Enabled  bool
}

// LoadSchedulerConfig returns scheduler configuration with defaults.
func LoadSchedulerConfig() *SchedulerConfig {
	viper.SetDefault("scheduler.interval", 10*time.Minute)
	viper.SetDefault("scheduler.enabled", true)

	return &SchedulerConfig{
		Interval: viper.GetDuration("scheduler.interval"),
		Enabled:  viper.GetBool("scheduler.enabled"),
	}
}
