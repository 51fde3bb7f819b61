package model

// MACD holds the MACD line, its signal line and the histogram.
type MACD struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// Bollinger holds the bands and the squeeze flag.
type Bollinger struct {
	Upper   float64 `json:"upper"`
	Middle  float64 `json:"middle"`
	Lower   float64 `json:"lower"`
	Squeeze bool    `json:"squeeze"`
}

// Stochastic holds %K, %D and the extreme flags.
type Stochastic struct {
	K          float64 `json:"k"`
	D          float64 `json:"d"`
	Oversold   bool    `json:"oversold"`
	Overbought bool    `json:"overbought"`
}

// Indicators is the flat set of indicator values computed for one analysis pass.
type Indicators struct {
	RSI           float64    `json:"rsi"`
	RSIFast       float64    `json:"rsi_fast"`
	MACD          MACD       `json:"macd"`
	Bollinger     Bollinger  `json:"bollinger"`
	SMA5          float64    `json:"sma5"`
	SMA10         float64    `json:"sma10"`
	SMA15         float64    `json:"sma15"`
	SMA20         float64    `json:"sma20"`
	EMA5          float64    `json:"ema5"`
	EMA8          float64    `json:"ema8"`
	EMA12         float64    `json:"ema12"`
	EMA21         float64    `json:"ema21"`
	EMA26         float64    `json:"ema26"`
	Stochastic    Stochastic `json:"stochastic"`
	WilliamsR     float64    `json:"williamsR"`
	CCI           float64    `json:"cci"`
	Momentum      float64    `json:"momentum"`
	PricePosition float64    `json:"pricePosition"`
}
