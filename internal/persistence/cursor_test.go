package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robsoncoffy/crechepimpolinhos-sub004/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	in := &domain.Cursor{
		PunchedAt: time.Date(2025, time.June, 2, 8, 30, 15, 123456789, time.UTC),
		ID:        "punch-1",
	}

	token := EncodeCursor(in)
	require.NotEmpty(t, token)

	out, err := DecodeCursor(token)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.True(t, out.PunchedAt.Equal(in.PunchedAt))
	require.Equal(t, in.ID, out.ID)
}

func TestDecodeCursorEmpty(t *testing.T) {
	out, err := DecodeCursor(" ")
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("!!not-base64")
	require.Error(t, err)

	_, err = DecodeCursor("bm8tcGlwZS1oZXJl") // "no-pipe-here"
	require.Error(t, err)
}
