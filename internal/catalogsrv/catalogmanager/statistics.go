package catalogmanager

import (
	"context"

	"github.com/viewplan/viewplan/internal/catalogsrv/catcommon"
	"github.com/viewplan/viewplan/internal/catalogsrv/store"
	"github.com/viewplan/viewplan/internal/common/apperrors"
)

// Statistics summarizes the catalog for observability surfaces.
type Statistics struct {
	TotalViews    int                           `json:"total_views"`
	ActiveViews   int                           `json:"active_views"` // non-archived
	ByStatus      map[catcommon.ViewStatus]int  `json:"by_status"`
	ByLayer       map[catcommon.Layer]int       `json:"by_layer"`
	ByDomain      map[catcommon.Domain]int      `json:"by_domain"`
	TotalUsage    int64                         `json:"total_usage"`
	MostUsed      string                        `json:"most_used"`
	MostUsedCount int64                         `json:"most_used_count"`
}

// Statistics aggregates counts by status, layer and domain plus usage
// totals over the whole catalog, archived records included.
func (m *Manager) Statistics(ctx context.Context) (*Statistics, apperrors.Error) {
	records, err := m.store.Scan(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		ByStatus: make(map[catcommon.ViewStatus]int),
		ByLayer:  make(map[catcommon.Layer]int),
		ByDomain: make(map[catcommon.Domain]int),
	}
	for _, r := range records {
		stats.TotalViews++
		if r.Status != catcommon.StatusArchived {
			stats.ActiveViews++
		}
		stats.ByStatus[r.Status]++
		stats.ByLayer[r.Layer]++
		stats.ByDomain[r.Domain]++
		stats.TotalUsage += r.UsageCount

		if r.UsageCount > stats.MostUsedCount ||
			(r.UsageCount == stats.MostUsedCount && stats.MostUsed != "" && r.Name < stats.MostUsed) {
			stats.MostUsed = r.Name
			stats.MostUsedCount = r.UsageCount
		}
	}
	return stats, nil
}
