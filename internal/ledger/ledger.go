// Package ledger adjusts user balances and reads the transaction history.
package ledger

import (
	"context"
	"errors"
	"math"
	"strings"

	"gorm.io/gorm"

	"droplet_console/internal/apperr"
	"droplet_console/internal/models"
)

type Ledger struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{DB: db}
}

// Adjust credits (positive amount) or debits (negative amount) a user's
// balance and records the matching transaction. A debit never takes the
// balance below zero.
func (l *Ledger) Adjust(ctx context.Context, userID int64, amount float64, description string) (*models.Transaction, float64, error) {
	amount = math.Round(amount*100) / 100
	if amount == 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, 0, apperr.New(apperr.CodeValidation, "amount must be a non-zero number")
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = "Manual balance adjustment"
	}

	var (
		tx      models.Transaction
		balance float64
	)
	err := l.DB.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		q := db.Model(&models.User{}).Where("id = ?", userID)
		if amount < 0 {
			q = q.Where("balance >= ?", -amount)
		}
		res := q.Update("balance", gorm.Expr("balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}

		var u models.User
		if err := db.Select("id", "balance").First(&u, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Newf(apperr.CodeNotFound, "user %d not found", userID)
			}
			return err
		}
		if res.RowsAffected == 0 {
			return apperr.Newf(apperr.CodeInsufficientBalance,
				"cannot debit %.2f, balance is %.2f", -amount, u.Balance)
		}
		balance = u.Balance

		kind := models.TransactionTopUp
		if amount < 0 {
			kind = models.TransactionAdjustment
		}
		tx = models.Transaction{
			UserID:      userID,
			Amount:      amount,
			Type:        kind,
			Status:      models.TransactionCompleted,
			Description: description,
		}
		return db.Create(&tx).Error
	})
	if err != nil {
		if apperr.GetCode(err) != apperr.CodeInternal {
			return nil, 0, err
		}
		return nil, 0, apperr.Wrap(err, apperr.CodeInternal, "failed to adjust balance")
	}
	return &tx, balance, nil
}

type Page struct {
	Items      []models.Transaction `json:"transactions"`
	NextCursor *int64               `json:"next_cursor"`
}

// List returns a user's transactions newest first, keyset-paginated on id.
func (l *Ledger) List(ctx context.Context, userID int64, limit int, afterID int64) (Page, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := l.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC")
	if afterID > 0 {
		q = q.Where("id < ?", afterID)
	}
	var items []models.Transaction
	if err := q.Limit(limit + 1).Find(&items).Error; err != nil {
		return Page{}, apperr.Wrap(err, apperr.CodeInternal, "failed to load transactions")
	}
	page := Page{Items: items}
	if len(items) > limit {
		next := items[limit-1].ID
		page.Items = items[:limit]
		page.NextCursor = &next
	}
	return page, nil
}
