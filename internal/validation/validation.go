package validation

import (
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"

	errpkg "github.com/veranemoloko/download-engine/internal/errors"
)

var validate *validator.Validate

func init() {
	validate = New()
}

// New returns a validator with the engine's custom rules registered.
func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("secure_url", validateSecureURL)
	return v
}

// ValidateDownloadURL rejects anything not using a secure transport.
func ValidateDownloadURL(rawURL string) error {
	if err := validate.Var(rawURL, "required,secure_url"); err != nil {
		return fmt.Errorf("%w: %q", errpkg.ErrInvalidURL, rawURL)
	}
	return nil
}

func validateSecureURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.Host != ""
}
