// Package credentials persists the DigitalOcean API token.
package credentials

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"droplet_console/internal/apperr"
	"droplet_console/internal/models"
)

var ErrMissing = apperr.New(apperr.CodeCredentialMissing, "DigitalOcean API token not configured").
	WithSuggestion("Configure a token under settings")

type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// Active returns the newest active credential.
func (s *Store) Active(ctx context.Context) (*models.DigitalOceanToken, error) {
	var tok models.DigitalOceanToken
	err := s.DB.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").Order("id DESC").
		First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMissing
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to load DigitalOcean token")
	}
	return &tok, nil
}

// ActiveToken satisfies digitalocean.TokenSource.
func (s *Store) ActiveToken(ctx context.Context) (string, error) {
	tok, err := s.Active(ctx)
	if err != nil {
		return "", err
	}
	return tok.Token, nil
}

// Rotate makes token the only active credential. A previously stored row with
// the same value is reactivated instead of duplicated; older rows are kept,
// inactive.
func (s *Store) Rotate(ctx context.Context, token string) (*models.DigitalOceanToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.New(apperr.CodeValidation, "token is required")
	}

	var current models.DigitalOceanToken
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("token = ?", token).First(&current).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			current = models.DigitalOceanToken{Token: token, IsActive: true}
			if err := tx.Create(&current).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := tx.Model(&current).Update("is_active", true).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.DigitalOceanToken{}).
			Where("id <> ? AND is_active = ?", current.ID, true).
			Update("is_active", false).Error
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to store DigitalOcean token")
	}
	return &current, nil
}

// Mask hides all but the last four characters of a token.
func Mask(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", 8) + token[len(token)-4:]
}
