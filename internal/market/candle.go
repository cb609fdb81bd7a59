package market

// Candle 为一根 K 线，按时间升序排列时 candles[len-1] 为最新一根。
type Candle struct {
	OpenTime    int64   `json:"open_time"`
	CloseTime   int64   `json:"close_time"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	QuoteVolume float64 `json:"quote_volume"`
	Trades      int64   `json:"trades"`
}

// QuoteTurnover 返回计价币成交额；交易所未提供时用 volume×close 估算。
func (c Candle) QuoteTurnover() float64 {
	if c.QuoteVolume > 0 {
		return c.QuoteVolume
	}
	return c.Volume * c.Close
}
