package sim

// Params 单个标的的 GBM 参数（年化）。
type Params struct {
	Mu    float64 // 漂移
	Sigma float64 // 波动率
}

// DefaultParams 用于参数表之外的动态添加标的。
var DefaultParams = Params{Mu: 0.05, Sigma: 0.25}

// 未知标的的初始价格区间 [min, max)。
const (
	RandomSeedMin = 50.0
	RandomSeedMax = 300.0
)

// SeedPrices 默认自选列表的起始价格。
var SeedPrices = map[string]float64{
	"AAPL":  190.00,
	"GOOGL": 175.00,
	"MSFT":  420.00,
	"AMZN":  185.00,
	"TSLA":  250.00,
	"NVDA":  800.00,
	"META":  500.00,
	"JPM":   195.00,
	"V":     280.00,
	"NFLX":  600.00,
}

// SymbolParams 每个标的的漂移/波动率。
var SymbolParams = map[string]Params{
	"AAPL":  {Mu: 0.05, Sigma: 0.22},
	"GOOGL": {Mu: 0.05, Sigma: 0.25},
	"MSFT":  {Mu: 0.05, Sigma: 0.20},
	"AMZN":  {Mu: 0.05, Sigma: 0.28},
	"TSLA":  {Mu: 0.03, Sigma: 0.50},
	"NVDA":  {Mu: 0.08, Sigma: 0.40},
	"META":  {Mu: 0.05, Sigma: 0.30},
	"JPM":   {Mu: 0.04, Sigma: 0.18},
	"V":     {Mu: 0.04, Sigma: 0.17},
	"NFLX":  {Mu: 0.05, Sigma: 0.35},
}
