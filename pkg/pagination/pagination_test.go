package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	require.Equal(t, 7, NormalizeLimit(7))
	require.Equal(t, 8, LimitWithBuffer(7))
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC), ID: uuid.New()}

	out, err := ParseCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.True(t, in.CreatedAt.Equal(out.CreatedAt))
	require.Equal(t, in.ID, out.ID)
}

func TestParseCursorEmptyAndInvalid(t *testing.T) {
	c, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)

	_, err = ParseCursor("%%%")
	require.Error(t, err)
}

func TestBuildTrimsBufferedRow(t *testing.T) {
	base := time.Now().UTC()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	rows := []Cursor{
		{CreatedAt: base, ID: ids[0]},
		{CreatedAt: base.Add(-time.Minute), ID: ids[1]},
		{CreatedAt: base.Add(-2 * time.Minute), ID: ids[2]},
	}
	identity := func(c Cursor) Cursor { return c }

	page := Build(rows, 2, identity)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	next, err := ParseCursor(page.NextCursor)
	require.NoError(t, err)
	require.Equal(t, ids[1], next.ID)

	last := Build(rows[:2], 2, identity)
	require.Empty(t, last.NextCursor)
}
