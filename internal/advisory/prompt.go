package advisory

import (
	"fmt"
	"strings"

	"spotguard/internal/ledger"

	"github.com/shopspring/decimal"
)

const defaultSystemPrompt = "You are a conservative, precise spot crypto analyst. " +
	"Answer on one line using exactly the requested format. Never add leverage or short suggestions."

func entryPrompt(symbol, label string, price decimal.Decimal) string {
	return fmt.Sprintf(`Symbol: %s
Strategy: %s
Current price: %s

Estimate the probability (%%) that an entry now succeeds, a take-profit (%% above entry),
a stop-loss (%% below entry) and the share of available funds to commit (%%).
Format: successProbability:P%% takeProfit:T%% stopLoss:S%% size:Z%%`, symbol, label, price.String())
}

func reevaluatePrompt(symbol, label string, entry, price decimal.Decimal) string {
	return fmt.Sprintf(`Symbol: %s
Strategy: %s
Entry price: %s
Current price: %s

Re-assess the open position. Give updated take-profit and stop-loss relative to the entry price.
Format: successProbability:P%% takeProfit:T%% stopLoss:S%% size:Z%%`, symbol, label, entry.String(), price.String())
}

func suggestPrompt(stats []ledger.StrategyStats, blocked []string) string {
	var b strings.Builder
	b.WriteString("Realized strategy performance:\n")
	if len(stats) == 0 {
		b.WriteString("- no closed trades yet\n")
	}
	for _, s := range stats {
		fmt.Fprintf(&b, "- %s: trades=%d wins=%d losses=%d mean_return=%s%%\n",
			s.Label, s.Count, s.Wins, s.Losses, s.MeanReturnPct.StringFixed(2))
	}
	if len(blocked) > 0 {
		fmt.Fprintf(&b, "Blocked strategies: %s\n", strings.Join(blocked, ", "))
	}
	b.WriteString("\nBeyond these, suggest two spot strategies that suit the current market and describe their entry conditions briefly.")
	return b.String()
}
