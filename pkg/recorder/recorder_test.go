package recorder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostim/pkg/container"
	"gostim/pkg/value"
)

func TestRecordAndCount(t *testing.T) {
	rec, err := Open(filepath.Join(t.TempDir(), "stim.db"))
	require.NoError(t, err)
	defer rec.Close()

	c := container.New("packet", nil)
	require.NoError(t, c.AddLogic(value.NewUint8("kind")))
	require.NoError(t, c.AddLogic(value.NewUint16("length")))

	// Nothing randomized yet: nothing to attribute the rows to.
	require.Error(t, rec.Record(c))

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Randomize(context.Background()))
		require.NoError(t, rec.Record(c))
	}

	n, err := rec.Count()
	require.NoError(t, err)
	assert.Equal(t, 6, n, "two fields per call, three calls")

	ids, err := rec.Reports()
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.NotEqual(t, ids[0], ids[1])
}
