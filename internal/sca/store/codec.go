package store

import (
	"encoding/json"
	"fmt"

	"github.com/aussiebroadwan/scagate/internal/sca/domain"
)

// Methods are persisted as JSON text by every driver. These helpers keep the
// encoding in one place.

// EncodeMethods serialises the available methods, nil stays empty.
func EncodeMethods(ms []domain.ScaMethod) (string, error) {
	if len(ms) == 0 {
		return "", nil
	}
	b, err := json.Marshal(ms)
	if err != nil {
		return "", fmt.Errorf("encode methods: %w", err)
	}
	return string(b), nil
}

// DecodeMethods is the inverse of EncodeMethods.
func DecodeMethods(s string) ([]domain.ScaMethod, error) {
	if s == "" {
		return nil, nil
	}
	var ms []domain.ScaMethod
	if err := json.Unmarshal([]byte(s), &ms); err != nil {
		return nil, fmt.Errorf("decode methods: %w", err)
	}
	return ms, nil
}

// EncodeMethod serialises the chosen method.
func EncodeMethod(m *domain.ScaMethod) (string, error) {
	if m == nil {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode method: %w", err)
	}
	return string(b), nil
}

// DecodeMethod is the inverse of EncodeMethod.
func DecodeMethod(s string) (*domain.ScaMethod, error) {
	if s == "" {
		return nil, nil
	}
	var m domain.ScaMethod
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode method: %w", err)
	}
	return &m, nil
}
