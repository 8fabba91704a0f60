package stock

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ordwell/ordercore/internal/domain/order"
)

type memRepo struct {
	movements []*Movement
	deltas    map[uuid.UUID]int
}

func newMemRepo() *memRepo {
	return &memRepo{deltas: map[uuid.UUID]int{}}
}

func (r *memRepo) CreateMovements(_ context.Context, movements []*Movement) error {
	r.movements = append(r.movements, movements...)
	return nil
}

func (r *memRepo) AdjustVariantStock(_ context.Context, variantID uuid.UUID, delta int) error {
	r.deltas[variantID] += delta
	return nil
}

type stubVariants struct {
	byID map[uuid.UUID]*order.Variant
}

func (p *stubVariants) Variant(_ context.Context, id uuid.UUID) (*order.Variant, error) {
	return p.byID[id], nil
}

func fixture() (*Service, *memRepo, *order.Order, uuid.UUID, uuid.UUID) {
	tracked := uuid.New()
	untracked := uuid.New()
	repo := newMemRepo()
	variants := &stubVariants{byID: map[uuid.UUID]*order.Variant{
		tracked:   {ID: tracked, TrackInventory: true},
		untracked: {ID: untracked, TrackInventory: false},
	}}

	ord := order.New(nil)
	ord.Lines = append(ord.Lines,
		order.NewLine(tracked, decimal.NewFromInt(1000), 2),
		order.NewLine(untracked, decimal.NewFromInt(500), 1),
	)
	return NewService(repo, variants, zap.NewNop()), repo, ord, tracked, untracked
}

func TestCreateSalesForOrder(t *testing.T) {
	svc, repo, ord, tracked, untracked := fixture()

	require.NoError(t, svc.CreateSalesForOrder(context.Background(), ord))

	require.Len(t, repo.movements, 2)
	for _, m := range repo.movements {
		assert.Equal(t, KindSale, m.Kind)
		require.NotNil(t, m.OrderID)
		assert.Equal(t, ord.ID, *m.OrderID)
		assert.Negative(t, m.Quantity)
	}

	// Only inventory-tracked variants get their counter decremented.
	assert.Equal(t, -2, repo.deltas[tracked])
	assert.Zero(t, repo.deltas[untracked])
}

func TestCreateSalesForEmptyOrder(t *testing.T) {
	svc, repo, _, _, _ := fixture()

	require.NoError(t, svc.CreateSalesForOrder(context.Background(), order.New(nil)))
	assert.Empty(t, repo.movements)
}

func TestCreateCancellationsForItems(t *testing.T) {
	svc, repo, ord, tracked, _ := fixture()

	items := ord.Lines[0].Items
	require.NoError(t, svc.CreateCancellationsForItems(context.Background(), ord, items))

	// Two items of one variant collapse into one movement.
	require.Len(t, repo.movements, 1)
	m := repo.movements[0]
	assert.Equal(t, KindCancellation, m.Kind)
	assert.Equal(t, tracked, m.VariantID)
	assert.Equal(t, 2, m.Quantity)
	assert.Equal(t, 2, repo.deltas[tracked])
}

func TestCreateCancellationsForeignItem(t *testing.T) {
	svc, _, ord, _, _ := fixture()

	foreign := &order.Item{ID: uuid.New()}
	err := svc.CreateCancellationsForItems(context.Background(), ord, []*order.Item{foreign})
	assert.Error(t, err)
}

func TestAdjustStock(t *testing.T) {
	svc, repo, _, tracked, _ := fixture()

	require.NoError(t, svc.AdjustStock(context.Background(), tracked, 5))
	require.Len(t, repo.movements, 1)
	assert.Equal(t, KindAdjustment, repo.movements[0].Kind)
	assert.Equal(t, 5, repo.deltas[tracked])

	// Zero delta is a no-op.
	require.NoError(t, svc.AdjustStock(context.Background(), tracked, 0))
	assert.Len(t, repo.movements, 1)
}
