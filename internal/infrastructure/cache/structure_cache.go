package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/fees"
)

// StructureCache caches active fee structure lookups. FindActive is hit on
// every collection and every ledger decoration, and structures change a few
// times a year, so even a short TTL removes most of the read load.
//
// Get returns (nil, nil) on a cache miss.
type StructureCache interface {
	Get(ctx context.Context, schoolID uuid.UUID, grade int, academicYear string) (*fees.FeeStructure, error)
	Set(ctx context.Context, structure *fees.FeeStructure, ttl time.Duration) error
	InvalidateSchool(ctx context.Context, schoolID uuid.UUID) error
	Close() error
}

// activeStructureKey generates the cache key for an active structure lookup
func activeStructureKey(schoolID uuid.UUID, grade int, academicYear string) string {
	return fmt.Sprintf("fee_structure:active:%s:%d:%s", schoolID, grade, academicYear)
}

// schoolKeyPattern matches every cached structure for one school
func schoolKeyPattern(schoolID uuid.UUID) string {
	return fmt.Sprintf("fee_structure:active:%s:*", schoolID)
}
