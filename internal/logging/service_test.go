package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmitAK1/missing-object-surveillance/internal/models"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var fields map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	return fields
}

func TestWithTarget(t *testing.T) {
	t.Run("with identity", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WithTarget(zerolog.New(&buf), 2, models.TrackID(17))
		logger.Info().Msg("x")

		fields := decodeLine(t, &buf)
		assert.EqualValues(t, 2, fields["target"])
		assert.EqualValues(t, 17, fields["track_id"])
	})

	t.Run("without identity", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WithTarget(zerolog.New(&buf), 0, nil)
		logger.Info().Msg("x")

		fields := decodeLine(t, &buf)
		assert.EqualValues(t, 0, fields["target"])
		assert.NotContains(t, fields, "track_id")
	})
}
