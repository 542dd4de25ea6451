package fulfillment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/planetaketo/storefront/app/models"
)

const tokenBytes = 32

// MagicLink is the issued credential plus its public download URL.
type MagicLink struct {
	Token       string
	DownloadURL string
}

// RedeemedFile is the product payload returned by a successful redemption.
type RedeemedFile struct {
	FileName    string
	ContentType string
	Data        []byte
	Remaining   int
}

// IssueMagicLink finds or creates the download credential for a payment. The
// unique constraint on payment_id keeps the relation one-to-one: a retry that
// races a concurrent issuance gets the existing row back instead of minting a
// second credential. The second return value reports whether a new row was
// created.
func (s *Service) IssueMagicLink(ctx context.Context, customerID, paymentID uint, fileName string) (*MagicLink, bool, error) {
	_ = ctx
	token, err := generateToken()
	if err != nil {
		return nil, false, fmt.Errorf("generate download token: %w", err)
	}

	link := &models.DownloadLink{
		CustomerID:    customerID,
		PaymentID:     paymentID,
		Token:         token,
		FileName:      fileName,
		DownloadCount: 0,
		MaxDownloads:  s.cfg.DownloadLimit,
	}
	if s.cfg.LinkExpiry > 0 {
		expiry := time.Now().Add(s.cfg.LinkExpiry)
		link.ExpiresAt = &expiry
	}

	created, stored, err := s.repo.CreateDownloadLinkIfNotExists(link)
	if err != nil {
		return nil, false, err
	}
	return &MagicLink{Token: stored.Token, DownloadURL: s.downloadURL(stored.Token)}, created, nil
}

// ValidateToken checks a token without consuming a download. It returns the
// link so callers can report the remaining count.
func (s *Service) ValidateToken(ctx context.Context, token string) (*models.DownloadLink, error) {
	_ = ctx
	link, err := s.repo.GetDownloadLinkByToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	if link.Expired(time.Now()) {
		return nil, ErrLinkExpired
	}
	if link.DownloadCount >= link.MaxDownloads {
		return nil, ErrLinkExhausted
	}
	return link, nil
}

// Redeem consumes one download and returns the product file. The counter
// increment is a conditional single-row update, so two concurrent redemptions
// of the last remaining slot resolve to one winner. If the storage fetch
// fails after the increment, the slot is handed back instead of burning an
// attempt the customer never received.
func (s *Service) Redeem(ctx context.Context, token string) (*RedeemedFile, error) {
	link, err := s.repo.GetDownloadLinkByToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	if link.Expired(time.Now()) {
		return nil, ErrLinkExpired
	}

	incremented, err := s.repo.IncrementDownloadCount(token, time.Now())
	if err != nil {
		return nil, err
	}
	if !incremented {
		return nil, ErrLinkExhausted
	}

	data, contentType, err := s.store.FetchProduct(ctx, link.FileName)
	if err != nil {
		if decErr := s.repo.DecrementDownloadCount(link.ID); decErr != nil {
			return nil, fmt.Errorf("fetch failed (%v) and download slot could not be restored: %w", err, decErr)
		}
		return nil, fmt.Errorf("fetch product file: %w", err)
	}

	remaining := link.MaxDownloads - (link.DownloadCount + 1)
	if remaining < 0 {
		remaining = 0
	}
	return &RedeemedFile{
		FileName:    link.FileName,
		ContentType: contentType,
		Data:        data,
		Remaining:   remaining,
	}, nil
}

func (s *Service) downloadURL(token string) string {
	return fmt.Sprintf("%s/download/%s", s.cfg.BaseURL, token)
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
