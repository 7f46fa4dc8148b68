package mockbank

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"

	"github.com/aussiebroadwan/scagate/internal/sca/spi"
)

// session is what the bank keeps in the opaque blob between calls.
type session struct {
	PsuID         string `json:"psuId,omitempty"`
	Authenticated bool   `json:"authenticated,omitempty"`
	Attempts      int    `json:"attempts,omitempty"` // failed tries so far
	MethodID      string `json:"methodId,omitempty"`
	PushID        string `json:"pushId,omitempty"`
	Executed      bool   `json:"executed,omitempty"`
}

func decodeSession(blob []byte) (session, *spi.Error) {
	var s session
	if len(blob) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(blob, &s); err != nil {
		return s, &spi.Error{Code: spi.CodeInternalServerError, Text: "bank session is corrupt"}
	}
	return s, nil
}

func (s session) encode() []byte {
	// A struct of strings, ints and bools always marshals.
	b, _ := json.Marshal(s)
	return b
}

// newPushID is the reference the banking app confirms a decoupled request
// with. Whoever knows it can finish the authorisation.
func newPushID() (string, error) {
	buf := make([]byte, pushIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
