package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/hashicorp/go-multierror"
)

// IBMConfig holds the IBM Cloud identity settings.
type IBMConfig struct {
	APIKey     string        `env:"IBM_API_KEY" yaml:"ibm_api_key"`
	IAMURL     string        `env:"IAM_URL" yaml:"iam_url" default:"https://iam.cloud.ibm.com/identity/token"`
	IAMTimeout time.Duration `env:"IAM_TIMEOUT" yaml:"iam_timeout" default:"5s"`
}

// Validate checks the identity endpoint and timeout.
func (c IBMConfig) Validate() error {
	var result error
	if u, err := url.Parse(c.IAMURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		result = multierror.Append(result, fmt.Errorf("iam_url must be an http(s) URL, got %q", c.IAMURL))
	}
	if c.IAMTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("iam_timeout must be greater than 0"))
	}
	return result
}
