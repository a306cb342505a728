package sim

// CorrelationRule 给出两个标的之间的相关系数。
// 生成的相关矩阵必须正定，否则 Cholesky 分解失败。
type CorrelationRule interface {
	Correlation(a, b string) float64
}

// 相关系数。
const (
	IntraTechCorrelation    = 0.6
	IntraFinanceCorrelation = 0.5
	WeakCorrelation         = 0.3
	DefaultCorrelation      = 0.3 // 跨板块及未知标的
)

// SectorCorrelation 按板块分组的相关规则：
//  1. 任一方属于 Weak 则返回 WeakCorrelation（优先于分组判断）；
//  2. 同属一组返回该组的组内系数；
//  3. 其他情况返回 DefaultCorrelation。
type SectorCorrelation struct {
	Groups  []CorrelationGroup
	Weak    map[string]struct{}
	Default float64
}

// CorrelationGroup 组内标的使用 Intra 系数。
type CorrelationGroup struct {
	Name    string
	Members map[string]struct{}
	Intra   float64
}

// DefaultSectorCorrelation 科技股/金融股两组，TSLA 单独走弱相关。
func DefaultSectorCorrelation() SectorCorrelation {
	return SectorCorrelation{
		Groups: []CorrelationGroup{
			{
				Name:    "tech",
				Members: setOf("AAPL", "GOOGL", "MSFT", "AMZN", "META", "NVDA", "NFLX"),
				Intra:   IntraTechCorrelation,
			},
			{
				Name:    "finance",
				Members: setOf("JPM", "V"),
				Intra:   IntraFinanceCorrelation,
			},
		},
		Weak:    setOf("TSLA"),
		Default: DefaultCorrelation,
	}
}

func (r SectorCorrelation) Correlation(a, b string) float64 {
	if _, ok := r.Weak[a]; ok {
		return WeakCorrelation
	}
	if _, ok := r.Weak[b]; ok {
		return WeakCorrelation
	}
	for _, g := range r.Groups {
		_, okA := g.Members[a]
		_, okB := g.Members[b]
		if okA && okB {
			return g.Intra
		}
	}
	return r.Default
}

func setOf(items ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[it] = struct{}{}
	}
	return out
}
