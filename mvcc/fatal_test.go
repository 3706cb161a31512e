package mvcc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFatal_PanicsInsteadOfExiting(t *testing.T) {
	require.PanicsWithValue(t, "mvcc: fatal: boom", func() {
		Fatal("boom")
	})
}
