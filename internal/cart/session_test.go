package cart

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type stubCatalog struct {
	products map[uuid.UUID]catalog.Product
}

func (s *stubCatalog) GetProduct(_ context.Context, id uuid.UUID) (*catalog.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return &p, nil
}

type flakyStore struct {
	*MemoryStore
	failSaves int
	saves     int
}

func (f *flakyStore) Save(ctx context.Context, sessionID string, payload []byte) error {
	f.saves++
	if f.saves <= f.failSaves {
		return errors.New("store unavailable")
	}
	return f.MemoryStore.Save(ctx, sessionID, payload)
}

func testCartConfig(retries int) config.CartConfig {
	return config.CartConfig{PersistRetries: retries, PersistBackoff: time.Millisecond}
}

func newTestManager(t *testing.T, store SnapshotStore, products ...catalog.Product) (*Manager, *bytes.Buffer) {
	t.Helper()
	cat := &stubCatalog{products: map[uuid.UUID]catalog.Product{}}
	for _, p := range products {
		cat.products[p.ID] = p
	}
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	m, err := NewManager(store, cat, logg, testCartConfig(2))
	require.NoError(t, err)
	return m, buf
}

func TestSessionPersistsEveryMutation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := product("10", 3)
	m, _ := newTestManager(t, store, a)

	sess, err := m.Open(ctx, "sess-1")
	require.NoError(t, err)
	require.NoError(t, sess.AddItem(ctx, a.ID))
	require.NoError(t, sess.Increase(ctx, a.ID))

	reopened, err := m.Open(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, 2, reopened.Cart().TotalQuantity())
	require.Equal(t, "20", reopened.Cart().TotalPrice().String())

	require.NoError(t, reopened.Decrease(ctx, a.ID))
	again, err := m.Open(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, 1, again.Cart().TotalQuantity())
}

func TestSessionAddUsesFreshStock(t *testing.T) {
	ctx := context.Background()
	a := product("10", 0)
	m, _ := newTestManager(t, NewMemoryStore(), a)

	sess, err := m.Open(ctx, "sess-1")
	require.NoError(t, err)
	err = sess.AddItem(ctx, a.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock))

	err = sess.AddItem(ctx, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSessionRetriesTransientSaveFailures(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore(), failSaves: 2}
	a := product("4", 5)
	m, _ := newTestManager(t, store, a)

	sess, err := m.Open(ctx, "sess-1")
	require.NoError(t, err)
	require.NoError(t, sess.AddItem(ctx, a.ID))
	require.Equal(t, 3, store.saves)

	raw, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.NotEmpty(t, raw)
}

func TestSessionSurfacesExhaustedRetriesAndKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore(), failSaves: 100}
	a := product("4", 5)
	m, buf := newTestManager(t, store, a)

	sess, err := m.Open(ctx, "sess-1")
	require.NoError(t, err)
	err = sess.AddItem(ctx, a.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.Equal(t, 1, sess.Cart().TotalQuantity())
	require.Equal(t, 3, store.saves)
	require.Contains(t, buf.String(), "cart.persist.exhausted")
}

func TestOpenWithUnreadableSnapshotStartsEmpty(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, "sess-1", []byte("{not json")))
	m, buf := newTestManager(t, store)

	sess, err := m.Open(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, sess.Cart().IsEmpty())
	require.Contains(t, buf.String(), "cart.rehydrate.unreadable")
	require.Contains(t, buf.String(), `"cart_session":"sess-1"`)
}

func TestOpenRequiresSessionID(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore())
	_, err := m.Open(context.Background(), "  ")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestClearWipesSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := product("1", 2)
	m, _ := newTestManager(t, store, a)

	sess, err := m.Open(ctx, "sess-1")
	require.NoError(t, err)
	require.NoError(t, sess.AddItem(ctx, a.ID))
	require.NoError(t, sess.Clear(ctx))
	require.True(t, sess.Cart().IsEmpty())

	raw, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.Nil(t, raw)
}

func TestViewCarriesIncreasePredicate(t *testing.T) {
	ctx := context.Background()
	a := product("2.50", 1)
	b := product("1", 4)
	m, _ := newTestManager(t, NewMemoryStore(), a, b)

	sess, err := m.Open(ctx, "sess-1")
	require.NoError(t, err)
	require.NoError(t, sess.AddItem(ctx, a.ID))
	require.NoError(t, sess.AddItem(ctx, b.ID))

	view := sess.View()
	require.Len(t, view.Items, 2)
	require.False(t, view.Items[0].CanIncrease)
	require.True(t, view.Items[1].CanIncrease)
	require.Equal(t, "3.5", view.TotalPrice.String())
}
