package records

import (
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/application/reconcile"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/localstore"
)

// ListQuery selects a list view
type ListQuery struct {
	Page     int
	PageSize int
	Search   string
	Wait     bool // pull synchronously before answering
}

// ListResult is the local view of one collection
type ListResult struct {
	Collection shared.Collection `json:"collection"`
	Items      []shared.Record   `json:"items"`
	Page       int               `json:"page"`
	Total      int64             `json:"total"`
	TotalPages int               `json:"totalPages"`
	Sync       *reconcile.Status `json:"sync,omitempty"`
}

// SaveResult is the stored record and what the store had to do to fit it
type SaveResult struct {
	Record     shared.Record               `json:"record"`
	Compaction localstore.CompactionResult `json:"compaction"`
	Synced     bool                        `json:"synced"`
}
