package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"foodbank-checkin-backend/internal/storage"

	"github.com/rs/zerolog/log"
)

const (
	signatureContentType = "image/png"
	signaturePrefix      = "data:" + signatureContentType + ";base64,"
	maxSignatureBytes    = 512 << 10
)

// ErrSignatureNotFound is returned when a staff member has no stored signature
var ErrSignatureNotFound = errors.New("signature not found")

// SignatureService keeps staff signature images so they are drawn once.
// The object store is authoritative; the cache only saves round trips.
type SignatureService struct {
	objects  ObjectStore
	cache    SignatureCache
	cacheTTL time.Duration
}

// NewSignatureService creates a new signature service. cache may be nil.
func NewSignatureService(objects ObjectStore, cache SignatureCache, cacheTTL time.Duration) *SignatureService {
	return &SignatureService{objects: objects, cache: cache, cacheTTL: cacheTTL}
}

func signatureKey(adminID string) string {
	return fmt.Sprintf("signatures/%s.png", adminID)
}

// Save stores a PNG data URL as the admin's signature
func (s *SignatureService) Save(ctx context.Context, adminID, dataURL string) error {
	img, err := decodeSignature(dataURL)
	if err != nil {
		return err
	}
	if err := s.objects.Put(ctx, signatureKey(adminID), signatureContentType, img); err != nil {
		return fmt.Errorf("failed to store signature: %w", err)
	}
	s.warm(ctx, adminID, dataURL)
	return nil
}

// Get returns the admin's signature as a data URL
func (s *SignatureService) Get(ctx context.Context, adminID string) (string, error) {
	if s.cache != nil {
		dataURL, err := s.cache.GetSignature(ctx, adminID)
		if err == nil {
			return dataURL, nil
		}
		log.Debug().Err(err).Str("admin_id", adminID).Msg("Signature cache miss")
	}

	img, _, err := s.objects.Get(ctx, signatureKey(adminID))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", ErrSignatureNotFound
		}
		return "", fmt.Errorf("failed to load signature: %w", err)
	}

	dataURL := signaturePrefix + base64.StdEncoding.EncodeToString(img)
	s.warm(ctx, adminID, dataURL)
	return dataURL, nil
}

func (s *SignatureService) warm(ctx context.Context, adminID, dataURL string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetSignature(ctx, adminID, dataURL, s.cacheTTL); err != nil {
		log.Warn().Err(err).Str("admin_id", adminID).Msg("Failed to cache signature")
	}
}

func decodeSignature(dataURL string) ([]byte, error) {
	dataURL = strings.TrimSpace(dataURL)
	if !strings.HasPrefix(dataURL, signaturePrefix) {
		return nil, invalid("signature", "must be a base64 PNG data URL")
	}
	img, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, signaturePrefix))
	if err != nil || len(img) == 0 {
		return nil, invalid("signature", "must be a base64 PNG data URL")
	}
	if len(img) > maxSignatureBytes {
		return nil, invalid("signature", "is too large")
	}
	return img, nil
}
