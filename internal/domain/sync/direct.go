package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ehrsync/ehrsync/internal/domain/connection"
)

// ErrUnsupportedResourceType means the vendor does not expose the requested
// resource type for direct sync.
var ErrUnsupportedResourceType = errors.New("resource type not available for direct sync")

// SyncResourceType is the direct (non-bulk) enhanced sync path: a
// type-scoped search for one patient, walked page by page with the same
// rate limiting, extraction, and upsert primitive as bulk ingestion. The
// two paths differ only in how records are discovered.
func (p *Pipeline) SyncResourceType(ctx context.Context, conn *connection.Connection, vendorType string) (*IngestionSummary, error) {
	profile, err := p.profiles.Get(conn.Vendor)
	if err != nil {
		return nil, err
	}

	canonical, _ := profile.CanonicalType(vendorType)
	if !profile.SupportsEnhanced(canonical) {
		return nil, fmt.Errorf("%w: vendor %s does not expose %s", ErrUnsupportedResourceType, conn.Vendor, vendorType)
	}

	auth := requestAuth(profile, conn)
	summary := &IngestionSummary{}

	pageURL := profile.SearchURL(conn.BaseURL, vendorType, conn.PatientID)
	for pageURL != "" {
		if err := p.limiter.Wait(ctx, profile, conn.Tenant()); err != nil {
			return summary, err
		}

		bundle, err := p.client.SearchPage(ctx, pageURL, auth)
		if err != nil {
			return summary, fmt.Errorf("search %s: %w", vendorType, err)
		}

		for _, entry := range bundle.Entry {
			var resource map[string]interface{}
			if err := json.Unmarshal(entry.Resource, &resource); err != nil {
				summary.SkippedLines++
				p.logger.Warn().
					Str("connection_id", conn.ID.String()).
					Err(err).
					Msg("malformed bundle entry, skipping")
				continue
			}
			p.ingestResource(ctx, profile, conn, resource, summary)
		}

		pageURL = bundle.NextLink()
	}

	p.logger.Info().
		Str("connection_id", conn.ID.String()).
		Str("resource_type", vendorType).
		Int("stored", summary.Stored).
		Msg("direct sync finished")

	return summary, nil
}
