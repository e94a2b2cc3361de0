package services

import (
	"context"
	"strings"
	"time"

	"foodbank-checkin-backend/internal/metrics"
	"foodbank-checkin-backend/internal/models"
	"foodbank-checkin-backend/internal/repository"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const mirrorConcurrency = 8

// identityOf is what a check-in mirrors from its registration
func identityOf(reg *models.Registration) repository.CheckinIdentity {
	return repository.CheckinIdentity{
		UserID:    reg.ExternalID(),
		Name:      reg.FullName(),
		Household: reg.FormData.Household,
		Location:  reg.FormData.Location,
		FormData:  models.MirrorOf(reg),
	}
}

// candidateIdentities lists every userId a check-in of reg may still carry
func candidateIdentities(reg *models.Registration, previousExternalID string) []string {
	seen := make(map[string]struct{}, 3)
	var out []string
	for _, id := range []string{previousExternalID, reg.ID, reg.ExternalID()} {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// propagateIdentity rewrites the mirrored identity of every check-in linked to
// reg. previousExternalID is the formData.id before the edit. Each write is
// independent and a failure is recorded without stopping the others.
func propagateIdentity(ctx context.Context, checkins CheckinStore, m *metrics.Metrics, reg *models.Registration, previousExternalID string, at time.Time) *BatchResult {
	result := NewBatchResult()

	matched := make(map[string]struct{})
	var targets []string
	for _, candidate := range candidateIdentities(reg, previousExternalID) {
		found, err := checkins.FindByUserID(ctx, candidate)
		if err != nil {
			log.Error().Err(err).Str("user_id", candidate).Msg("Failed to find linked check-ins")
			result.fail(checkinPath("?userId="+candidate), err)
			continue
		}
		for _, c := range found {
			if _, ok := matched[c.ID]; ok {
				continue
			}
			matched[c.ID] = struct{}{}
			targets = append(targets, c.ID)
		}
	}

	identity := identityOf(reg)

	var g errgroup.Group
	g.SetLimit(mirrorConcurrency)
	for _, id := range targets {
		g.Go(func() error {
			if err := checkins.MergeIdentity(ctx, id, identity, at); err != nil {
				log.Error().Err(err).
					Str("checkin_id", id).
					Str("registration_id", reg.ID).
					Msg("Failed to update check-in mirror")
				m.MirrorUpdate(false)
				result.fail(checkinPath(id), err)
				return nil
			}
			m.MirrorUpdate(true)
			result.succeed(checkinPath(id))
			return nil
		})
	}
	_ = g.Wait()

	result.sort()
	return result
}
