package utils_test

import (
	"testing"

	"github.com/jrsteele09/go-chamados-sync/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestToStringSlice(t *testing.T) {
	require.Nil(t, utils.ToStringSlice(nil))
	require.Equal(t, []string{"admin"}, utils.ToStringSlice("admin"))
	require.Equal(t, []string{"a", "b"}, utils.ToStringSlice([]string{"a", "b"}))
	require.Equal(t, []string{"a", "c"}, utils.ToStringSlice([]any{"a", 1, "c"}))
	require.Nil(t, utils.ToStringSlice(42))
}

func TestFirstNonEmpty(t *testing.T) {
	require.Equal(t, "b", utils.FirstNonEmpty("", "b", "c"))
	require.Equal(t, "", utils.FirstNonEmpty())
}

func TestClone(t *testing.T) {
	src := []int{1, 2, 3}
	dst := utils.Clone(src)
	dst[0] = 9
	require.Equal(t, 1, src[0])
	require.Nil(t, utils.Clone[int](nil))
}
