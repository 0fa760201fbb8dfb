package config

// Redacted returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func (c *Config) Redacted() Config {
	out := *c // shallow copy of the top-level struct

	// Exchange
	redact(&out.Exchange.BTCMarkets.ApiKey)
	redact(&out.Exchange.BTCMarkets.ApiSecret)

	// Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	redact(&out.Redis.Password)

	// Blob
	redact(&out.Blob.AccessKey)
	redact(&out.Blob.SecretKey)

	// Alerts
	redact(&out.Alerts.DiscordWebhookURL)
	redact(&out.Alerts.TelegramToken)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if c.Markets.Allowed != nil {
		out.Markets.Allowed = make([]string, len(c.Markets.Allowed))
		copy(out.Markets.Allowed, c.Markets.Allowed)
	}
	if c.Markets.Granularities != nil {
		out.Markets.Granularities = make([]string, len(c.Markets.Granularities))
		copy(out.Markets.Granularities, c.Markets.Granularities)
	}
	if c.Analyzer.Levels != nil {
		out.Analyzer.Levels = make([]float64, len(c.Analyzer.Levels))
		copy(out.Analyzer.Levels, c.Analyzer.Levels)
	}
	if c.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(c.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, c.Server.CORSOrigins)
	}

	// Copy maps so mutations to the redacted copy do not affect the original.
	if c.Exchange.Binance.SymbolMap != nil {
		out.Exchange.Binance.SymbolMap = make(map[string]string, len(c.Exchange.Binance.SymbolMap))
		for k, v := range c.Exchange.Binance.SymbolMap {
			out.Exchange.Binance.SymbolMap[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
