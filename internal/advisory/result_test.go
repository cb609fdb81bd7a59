package advisory

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResultAccepts(t *testing.T) {
	cases := []struct {
		in   string
		want [4]string
	}{
		{in: "successProbability:90% takeProfit:5% stopLoss:2% size:20%", want: [4]string{"90", "5", "2", "20"}},
		{in: "Analysis done.\nsuccessprobability: 72.5 % takeprofit: 3.2% stoploss: 1.1% size: 15%", want: [4]string{"72.5", "3.2", "1.1", "15"}},
		{in: "**successProbability:[80]% takeProfit:[4]% stopLoss:[2]% size:[10]%**", want: [4]string{"80", "4", "2", "10"}},
		{in: "successProbability:75%, takeProfit:6%, stopLoss:3%, size:30% good luck", want: [4]string{"75", "6", "3", "30"}},
	}
	for _, tc := range cases {
		res, err := ParseResult(tc.in)
		require.NoError(t, err, tc.in)
		assert.True(t, res.SuccessProbability.Equal(decimal.RequireFromString(tc.want[0])), tc.in)
		assert.True(t, res.TakeProfitPct.Equal(decimal.RequireFromString(tc.want[1])), tc.in)
		assert.True(t, res.StopLossPct.Equal(decimal.RequireFromString(tc.want[2])), tc.in)
		assert.True(t, res.SizeHintPct.Equal(decimal.RequireFromString(tc.want[3])), tc.in)
	}
}

func TestParseResultRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"I cannot give financial advice.",
		"successProbability:90% takeProfit:5% stopLoss:2%",
		"successProbability:190% takeProfit:5% stopLoss:2% size:20%",
		"successProbability:90% takeProfit:5% stopLoss:2% size:120%",
		"successProbability:90% takeProfit:5% stopLoss:100% size:20%",
		"successProbability:-5% takeProfit:5% stopLoss:2% size:20%",
	} {
		res, err := ParseResult(in)
		assert.ErrorIs(t, err, ErrParse, in)
		assert.False(t, res.IsSignal(), in)
		assert.Equal(t, Result{}, res)
	}
}

func TestIsSignal(t *testing.T) {
	assert.False(t, Result{}.IsSignal())
	res, err := ParseResult("successProbability:90% takeProfit:0% stopLoss:2% size:20%")
	require.NoError(t, err)
	assert.False(t, res.IsSignal())
	res, err = ParseResult("successProbability:90% takeProfit:5% stopLoss:2% size:20%")
	require.NoError(t, err)
	assert.True(t, res.IsSignal())
}
