package models

import "time"

// DownloadLink is the magic-link credential granting bounded-count access to
// the purchased file. Rows are never deleted; an exhausted link stays around
// as the audit trail of the entitlement. The unique index on payment_id
// enforces one credential per payment, so recovery is find-or-recreate rather
// than issue-another.
type DownloadLink struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	CustomerID     uint       `gorm:"not null;index" json:"customer_id"`
	PaymentID      uint       `gorm:"not null;uniqueIndex:ux_download_links_payment_id" json:"payment_id"`
	Token          string     `gorm:"type:char(64) CHARACTER SET utf8 COLLATE utf8_bin;not null;uniqueIndex:ux_download_links_token" json:"-"`
	FileName       string     `gorm:"type:varchar(255);not null" json:"file_name"`
	DownloadCount  int        `gorm:"not null;default:0" json:"download_count"`
	MaxDownloads   int        `gorm:"not null;default:2" json:"max_downloads"`
	LastDownloadAt *time.Time `gorm:"type:timestamp;default:null" json:"last_download_at,omitempty"`
	ExpiresAt      *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Remaining reports how many redemptions are left on the link.
func (d *DownloadLink) Remaining() int {
	remaining := d.MaxDownloads - d.DownloadCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the optional expiry has passed.
func (d *DownloadLink) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && now.After(*d.ExpiresAt)
}
