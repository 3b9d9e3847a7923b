package models

import (
	"time"
)

// Wallet holds the current balance of one owner in whole FCFA.
// Balance only changes through the ledger's versioned update.
type Wallet struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	OwnerType string    `gorm:"size:32;not null;uniqueIndex:idx_wallet_owner" json:"owner_type"`
	OwnerID   string    `gorm:"size:64;not null;uniqueIndex:idx_wallet_owner" json:"owner_id"`
	Balance   int64     `gorm:"not null;default:0;check:balance >= 0" json:"balance"`
	Version   int64     `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewWallet(owner OwnerRef) *Wallet {
	return &Wallet{
		OwnerType: owner.Type,
		OwnerID:   owner.ID,
	}
}

func (w *Wallet) Owner() OwnerRef {
	return OwnerRef{Type: w.OwnerType, ID: w.OwnerID}
}
