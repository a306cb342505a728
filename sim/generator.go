package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"market-feed-go/market"
)

// TradingSecondsPerYear 252 个交易日 × 6.5 小时。
const TradingSecondsPerYear = 252 * 6.5 * 3600

// DefaultDt 500ms 一个 tick 对应的年化时间步长（约 8.48e-8）。
const DefaultDt = 0.5 / TradingSecondsPerYear

// 随机冲击默认值：每 tick 概率 0.1%，幅度 2%~5%。
const (
	DefaultShockProbability = 0.001
	DefaultShockMin         = 0.02
	DefaultShockMax         = 0.05
)

// MinPrice 取整后的最低价格，保证价格始终为正。
const MinPrice = 0.01

// ErrNotPositiveDefinite 相关矩阵无法做 Cholesky 分解，说明相关规则本身有误。
var ErrNotPositiveDefinite = errors.New("correlation matrix is not positive definite")

// Rand 随机源，测试时可替换为确定性实现。*rand.Rand 满足该接口。
type Rand interface {
	NormFloat64() float64
	Float64() float64
}

// Generator 基于几何布朗运动的多标的相关价格生成器：
//
//	S(t+dt) = S(t) * exp((mu - sigma^2/2)*dt + sigma*sqrt(dt)*Z)
//
// Z 由独立正态变量左乘相关矩阵的 Cholesky 因子得到。
// 非并发安全，由调用方加锁。
type Generator struct {
	dt        float64
	shockProb float64
	shockMin  float64
	shockMax  float64

	rand   Rand
	rule   CorrelationRule
	seeds  map[string]float64
	params map[string]Params
	log    *zap.Logger

	// symbols 的顺序即相关矩阵的下标顺序
	symbols []string
	prices  map[string]float64
	sp      map[string]Params
	chol    *mat.TriDense
}

// Option 配置 Generator。
type Option func(*Generator)

func WithDt(dt float64) Option { return func(g *Generator) { g.dt = dt } }

func WithShockProbability(p float64) Option { return func(g *Generator) { g.shockProb = p } }

// WithShockBand 冲击幅度区间 [min, max)。
func WithShockBand(min, max float64) Option {
	return func(g *Generator) {
		g.shockMin = min
		g.shockMax = max
	}
}

func WithRand(r Rand) Option { return func(g *Generator) { g.rand = r } }

func WithCorrelation(rule CorrelationRule) Option { return func(g *Generator) { g.rule = rule } }

// WithSeedPrices 替换起始价格表。
func WithSeedPrices(seeds map[string]float64) Option { return func(g *Generator) { g.seeds = seeds } }

// WithParams 替换 GBM 参数表。
func WithParams(params map[string]Params) Option { return func(g *Generator) { g.params = params } }

func WithLogger(log *zap.Logger) Option { return func(g *Generator) { g.log = log } }

// NewGenerator 使用初始标的列表创建生成器，并构建一次相关矩阵。
func NewGenerator(symbols []string, opts ...Option) (*Generator, error) {
	g := &Generator{
		dt:        DefaultDt,
		shockProb: DefaultShockProbability,
		shockMin:  DefaultShockMin,
		shockMax:  DefaultShockMax,
		rule:      DefaultSectorCorrelation(),
		seeds:     SeedPrices,
		params:    SymbolParams,
		prices:    make(map[string]float64),
		sp:        make(map[string]Params),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rand == nil {
		g.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if g.log == nil {
		g.log = zap.NewNop()
	}
	for _, sym := range symbols {
		g.addInternal(sym)
	}
	if err := g.rebuild(); err != nil {
		return nil, err
	}
	return g, nil
}

// Step 推进一个 tick，返回所有标的的新价格（已取整到 2 位小数）。
// 取整后的值即内部状态，避免误差在 tick 间累积。
func (g *Generator) Step() map[string]float64 {
	n := len(g.symbols)
	if n == 0 {
		return map[string]float64{}
	}

	z := make([]float64, n)
	for i := range z {
		z[i] = g.rand.NormFloat64()
	}
	if g.chol != nil {
		var corr mat.VecDense
		corr.MulVec(g.chol, mat.NewVecDense(n, z))
		z = corr.RawVector().Data
	}

	sqrtDt := math.Sqrt(g.dt)
	out := make(map[string]float64, n)
	for i, sym := range g.symbols {
		p := g.sp[sym]
		drift := (p.Mu - 0.5*p.Sigma*p.Sigma) * g.dt
		diffusion := p.Sigma * sqrtDt * z[i]
		price := g.prices[sym] * math.Exp(drift+diffusion)

		if g.rand.Float64() < g.shockProb {
			magnitude := g.shockMin + (g.shockMax-g.shockMin)*g.rand.Float64()
			sign := 1.0
			if g.rand.Float64() < 0.5 {
				sign = -1.0
			}
			price *= 1 + sign*magnitude
			g.log.Debug("price shock",
				zap.String("symbol", sym),
				zap.Float64("magnitude_pct", magnitude*100),
				zap.Float64("sign", sign))
		}

		if math.IsInf(price, 0) || math.IsNaN(price) {
			price = g.prices[sym]
		}
		price = market.RoundPrice(price)
		if price < MinPrice {
			price = MinPrice
		}
		g.prices[sym] = price
		out[sym] = price
	}
	return out
}

// AddSymbol 添加标的并重建相关矩阵；已存在则忽略。
// 重建失败时回滚，生成器状态不变。
func (g *Generator) AddSymbol(symbol string) error {
	if _, ok := g.prices[symbol]; ok {
		return nil
	}
	g.addInternal(symbol)
	if err := g.rebuild(); err != nil {
		g.removeInternal(symbol)
		_ = g.rebuild()
		return fmt.Errorf("add %s: %w", symbol, err)
	}
	return nil
}

// RemoveSymbol 删除标的的全部状态并重建相关矩阵；不存在则忽略。
func (g *Generator) RemoveSymbol(symbol string) error {
	if _, ok := g.prices[symbol]; !ok {
		return nil
	}
	price, params := g.prices[symbol], g.sp[symbol]
	idx := slices.Index(g.symbols, symbol)
	g.removeInternal(symbol)
	if err := g.rebuild(); err != nil {
		g.symbols = slices.Insert(g.symbols, idx, symbol)
		g.prices[symbol] = price
		g.sp[symbol] = params
		_ = g.rebuild()
		return fmt.Errorf("remove %s: %w", symbol, err)
	}
	return nil
}

// Price 当前价格；未跟踪时返回 false。
func (g *Generator) Price(symbol string) (float64, bool) {
	p, ok := g.prices[symbol]
	return p, ok
}

// Symbols 按矩阵下标顺序返回标的列表的拷贝。
func (g *Generator) Symbols() []string {
	return slices.Clone(g.symbols)
}

func (g *Generator) addInternal(symbol string) {
	if _, ok := g.prices[symbol]; ok {
		return
	}
	price, ok := g.seeds[symbol]
	if !ok {
		price = RandomSeedMin + (RandomSeedMax-RandomSeedMin)*g.rand.Float64()
	}
	params, ok := g.params[symbol]
	if !ok {
		params = DefaultParams
	}
	g.symbols = append(g.symbols, symbol)
	g.prices[symbol] = market.RoundPrice(price)
	g.sp[symbol] = params
}

func (g *Generator) removeInternal(symbol string) {
	g.symbols = slices.DeleteFunc(g.symbols, func(s string) bool { return s == symbol })
	delete(g.prices, symbol)
	delete(g.sp, symbol)
}

// rebuild 重新计算相关矩阵的下三角 Cholesky 因子；少于 2 个标的时置空。
func (g *Generator) rebuild() error {
	n := len(g.symbols)
	if n < 2 {
		g.chol = nil
		return nil
	}
	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		corr.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			corr.SetSym(i, j, g.rule.Correlation(g.symbols[i], g.symbols[j]))
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(corr); !ok {
		return fmt.Errorf("%w (%d symbols)", ErrNotPositiveDefinite, n)
	}
	var l mat.TriDense
	chol.LTo(&l)
	g.chol = &l
	return nil
}
