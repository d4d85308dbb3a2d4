package pagination_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entrada-events/entrada/pkg/db/pagination"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := pagination.EncodeCursor(pagination.Cursor{
		ID:        "1234567890",
		CreatedAt: "2026-03-01T09:00:00Z",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	cursor, err := pagination.DecodeCursor(token)
	require.NoError(t, err)
	require.Equal(t, "1234567890", cursor.ID)
	require.Equal(t, "2026-03-01T09:00:00Z", cursor.CreatedAt)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := pagination.DecodeCursor("not-base64!!!")
	require.Error(t, err)

	// Valid base64 but not a cursor payload.
	_, err = pagination.DecodeCursor("bm90LWpzb24=")
	require.Error(t, err)
}
