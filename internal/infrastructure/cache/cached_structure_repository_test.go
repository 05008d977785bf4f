package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/fees"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/schoolerp/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStructureRepo struct {
	mock.Mock
}

func (m *mockStructureRepo) FindByID(ctx context.Context, id uuid.UUID) (*fees.FeeStructure, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fees.FeeStructure), args.Error(1)
}

func (m *mockStructureRepo) FindByIDForSchool(ctx context.Context, schoolID, id uuid.UUID) (*fees.FeeStructure, error) {
	args := m.Called(ctx, schoolID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fees.FeeStructure), args.Error(1)
}

func (m *mockStructureRepo) Create(ctx context.Context, structure *fees.FeeStructure) error {
	args := m.Called(ctx, structure)
	return args.Error(0)
}

func (m *mockStructureRepo) Save(ctx context.Context, structure *fees.FeeStructure) error {
	args := m.Called(ctx, structure)
	return args.Error(0)
}

func (m *mockStructureRepo) FindActive(ctx context.Context, schoolID uuid.UUID, grade int, academicYear string) (*fees.FeeStructure, error) {
	args := m.Called(ctx, schoolID, grade, academicYear)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fees.FeeStructure), args.Error(1)
}

func (m *mockStructureRepo) FindByYear(ctx context.Context, schoolID uuid.UUID, academicYear string, filter shared.Filter) (shared.Paginated[fees.FeeStructure], error) {
	args := m.Called(ctx, schoolID, academicYear, filter)
	return args.Get(0).(shared.Paginated[fees.FeeStructure]), args.Error(1)
}

func newCachedStructure(t *testing.T, schoolID uuid.UUID) *fees.FeeStructure {
	t.Helper()
	structure, err := fees.NewFeeStructure(
		schoolID, "Grade 5 Standard", 5, "2025-2026",
		valueobject.NewMoneyINR(decimal.NewFromInt(1000)), 10, decimal.NewFromInt(2),
	)
	require.NoError(t, err)
	return structure
}

func TestFindActiveCachesSecondLookup(t *testing.T) {
	ctx := context.Background()
	schoolID := uuid.New()
	structure := newCachedStructure(t, schoolID)

	inner := new(mockStructureRepo)
	inner.On("FindActive", ctx, schoolID, 5, "2025-2026").Return(structure, nil).Once()

	memCache := NewInMemoryStructureCache()
	defer memCache.Close()

	repo := NewCachedFeeStructureRepository(inner, memCache, time.Minute, nil)

	first, err := repo.FindActive(ctx, schoolID, 5, "2025-2026")
	require.NoError(t, err)
	require.Equal(t, structure.ID, first.ID)

	// Second call must be served from cache; the mock only allows one hit.
	second, err := repo.FindActive(ctx, schoolID, 5, "2025-2026")
	require.NoError(t, err)
	require.Equal(t, structure.ID, second.ID)

	inner.AssertExpectations(t)
}

func TestFindActiveMissPropagatesNotFound(t *testing.T) {
	ctx := context.Background()
	schoolID := uuid.New()

	inner := new(mockStructureRepo)
	inner.On("FindActive", ctx, schoolID, 8, "2025-2026").Return(nil, shared.ErrNotFound)

	memCache := NewInMemoryStructureCache()
	defer memCache.Close()

	repo := NewCachedFeeStructureRepository(inner, memCache, time.Minute, nil)

	_, err := repo.FindActive(ctx, schoolID, 8, "2025-2026")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSaveInvalidatesSchoolEntries(t *testing.T) {
	ctx := context.Background()
	schoolID := uuid.New()
	structure := newCachedStructure(t, schoolID)

	inner := new(mockStructureRepo)
	inner.On("FindActive", ctx, schoolID, 5, "2025-2026").Return(structure, nil).Twice()
	inner.On("Save", ctx, structure).Return(nil)

	memCache := NewInMemoryStructureCache()
	defer memCache.Close()

	repo := NewCachedFeeStructureRepository(inner, memCache, time.Minute, nil)

	_, err := repo.FindActive(ctx, schoolID, 5, "2025-2026")
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, structure))

	// Save dropped the cached entry, so this lookup goes back to the database.
	_, err = repo.FindActive(ctx, schoolID, 5, "2025-2026")
	require.NoError(t, err)

	inner.AssertExpectations(t)
}

func TestInMemoryCacheExpiresEntries(t *testing.T) {
	ctx := context.Background()
	schoolID := uuid.New()
	structure := newCachedStructure(t, schoolID)

	memCache := NewInMemoryStructureCache()
	defer memCache.Close()

	require.NoError(t, memCache.Set(ctx, structure, -time.Second))

	cached, err := memCache.Get(ctx, schoolID, 5, "2025-2026")
	require.NoError(t, err)
	require.Nil(t, cached)
}

func TestInMemoryCacheInvalidateIsScopedToSchool(t *testing.T) {
	ctx := context.Background()
	schoolA := uuid.New()
	schoolB := uuid.New()

	memCache := NewInMemoryStructureCache()
	defer memCache.Close()

	require.NoError(t, memCache.Set(ctx, newCachedStructure(t, schoolA), time.Minute))
	require.NoError(t, memCache.Set(ctx, newCachedStructure(t, schoolB), time.Minute))

	require.NoError(t, memCache.InvalidateSchool(ctx, schoolA))

	gone, err := memCache.Get(ctx, schoolA, 5, "2025-2026")
	require.NoError(t, err)
	require.Nil(t, gone)

	kept, err := memCache.Get(ctx, schoolB, 5, "2025-2026")
	require.NoError(t, err)
	require.NotNil(t, kept)
}
