package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate_Empty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, Estimate(""))
}

func TestEstimate_ASCII(t *testing.T) {
	t.Parallel()
	// 10 ASCII chars * 0.4 * 1.2 = 4.8, rounded up to 5.
	assert.Equal(t, 5, Estimate("abcdefghij"))
}

func TestEstimate_DenseScript(t *testing.T) {
	t.Parallel()
	// 4 CJK chars * 1.6 * 1.2 = 7.68, rounded up to 8.
	assert.Equal(t, 8, Estimate("你好世界"))
}

func TestEstimate_MixedRoundsUp(t *testing.T) {
	t.Parallel()
	// 1 ASCII (0.4) + 1 CJK (1.6) = 2.0 * 1.2 = 2.4 -> 3. Ties and
	// fractions always round up: over-estimating is the safe direction.
	assert.Equal(t, 3, Estimate("a好"))
}

func TestEstimate_ConservativeAgainstLenQuarter(t *testing.T) {
	t.Parallel()
	// The estimate must never be cheaper than the naive len/4 rule the
	// overflow pass used to rely on, for ASCII text of any length.
	for _, n := range []int{1, 7, 64, 4096} {
		text := strings.Repeat("x", n)
		assert.GreaterOrEqual(t, Estimate(text), n/4, "len=%d", n)
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	t.Parallel()
	text := "GET http://10.0.0.7:8080/admin 返回 403"
	assert.Equal(t, Estimate(text), Estimate(text))
}
