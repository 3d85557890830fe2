package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	v, err := parseAmount(" 12.5 ")
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	for _, bad := range []string{"", "abc", "0", "-1", "1,5"} {
		_, err := parseAmount(bad)
		assert.Error(t, err, "input %q", bad)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	}
}

func TestValidEmail(t *testing.T) {
	assert.True(t, validEmail("a@b.co"))
	assert.False(t, validEmail("a.b.co"))
	assert.False(t, validEmail("a@bco"))
	assert.False(t, validEmail(""))
}

func TestEstimateFee(t *testing.T) {
	assert.Equal(t, 5.0, estimateFee(10), "floor applies to small amounts")
	assert.Equal(t, 5.0, estimateFee(500))
	assert.Equal(t, 10.0, estimateFee(1000))
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0x12345678", shortAddress("0x12345678"))
	long := "0x1234567890abcdef1234567890abcdef"
	got := shortAddress(long)
	assert.Equal(t, "0x12345678...7890abcdef", got)
}
