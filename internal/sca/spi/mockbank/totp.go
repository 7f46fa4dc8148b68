package mockbank

import (
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpOpts match what common authenticator apps produce. Skew 1 accepts the
// previous and next 30 second window.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}
