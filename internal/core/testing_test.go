package core

import (
	"courier/internal/config"
)

const testAPIKey = "LhhP1C9gijpSKCslHHCvwdSIz298twx271nTest"

func newTestConfig() *Configuration {
	cfg := config.Default().Client
	cfg.APIKey = testAPIKey
	return NewConfiguration(cfg, 0)
}
