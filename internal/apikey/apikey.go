// Package apikey mints API keys. Only the bcrypt hash and an 8-character
// lookup prefix are persisted; the raw key is shown once.
package apikey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/finsight/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// PrefixLen is the number of leading characters used to look a key up.
const PrefixLen = 8

const rawPrefix = "fsk_"

var (
	ErrNameRequired = errors.New("name is required")
	ErrUnknownScope = errors.New("unknown scope")
)

// KnownScopes lists every scope a key may carry.
var KnownScopes = []string{models.ScopeAnalyze, models.ScopeAdmin}

// Generate creates a key record and returns it with the raw key. Scopes
// default to analyze.
func Generate(name string, scopes []string) (*models.APIKey, string, error) {
	if name == "" {
		return nil, "", ErrNameRequired
	}
	if len(scopes) == 0 {
		scopes = []string{models.ScopeAnalyze}
	}
	for _, s := range scopes {
		if !slices.Contains(KnownScopes, s) {
			return nil, "", fmt.Errorf("%w: %q", ErrUnknownScope, s)
		}
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, "", fmt.Errorf("generating key: %w", err)
	}
	raw := rawPrefix + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing key: %w", err)
	}

	now := time.Now().UTC()
	return &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:PrefixLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}, raw, nil
}
