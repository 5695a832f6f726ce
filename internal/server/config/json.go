package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/hotspotpay/internal/flagx"
	"github.com/dmitrijs2005/hotspotpay/internal/timex"
)

// JsonConfig is the on-disk shape of a config file. Durations use
// timex.Duration, so both "10s" and integer nanoseconds are accepted.
type JsonConfig struct {
	DatabaseDSN           string         `json:"database_dsn"`
	VaultKey              string         `json:"vault_key"`
	LogLevel              string         `json:"log_level"`
	ProviderTimeout       timex.Duration `json:"provider_timeout"`
	ProviderRatePerSecond float64        `json:"provider_rate_per_second"`
	ProviderBurst         int            `json:"provider_burst"`
	IntaSendSandboxURL    string         `json:"intasend_sandbox_url"`
	IntaSendLiveURL       string         `json:"intasend_live_url"`
	CallbackURL           string         `json:"callback_url"`
	S3RootUser            string         `json:"s3_root_user"`
	S3RootPassword        string         `json:"s3_root_password"`
	S3Bucket              string         `json:"s3_bucket"`
	S3Region              string         `json:"s3_region"`
	S3BaseEndpoint        string         `json:"s3_base_endpoint"`
}

// parseJson overlays values from the JSON file named by -c/-config (or
// $HOTSPOT_CONFIG). Keys absent from the file keep their current value.
// An unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.VaultKey, c.VaultKey)
	setString(&config.LogLevel, c.LogLevel)
	if c.ProviderTimeout.Duration > 0 {
		config.ProviderTimeout = c.ProviderTimeout.Duration
	}
	if c.ProviderRatePerSecond > 0 {
		config.ProviderRatePerSecond = c.ProviderRatePerSecond
	}
	if c.ProviderBurst > 0 {
		config.ProviderBurst = c.ProviderBurst
	}
	setString(&config.IntaSendSandboxURL, c.IntaSendSandboxURL)
	setString(&config.IntaSendLiveURL, c.IntaSendLiveURL)
	setString(&config.CallbackURL, c.CallbackURL)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
