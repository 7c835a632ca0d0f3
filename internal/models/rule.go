package models

// RuleDefinition — неизменяемая версия торгового правила.
// Новая версия — это новый скомпилированный артефакт в кеше (id, version).
type RuleDefinition struct {
	ID         string             `yaml:"id" json:"id"`
	Version    int                `yaml:"version" json:"version"`
	Expression string             `yaml:"expression" json:"expression"`
	Parameters map[string]float64 `yaml:"parameters" json:"parameters"`
}

// Direction — эвристическое направление сигнала.
type Direction string

const (
	DirFlat  Direction = "flat"
	DirLong  Direction = "long"
	DirShort Direction = "short"
)

// EvaluatedRule — результат вычисления правила по одной свече.
// Производное значение, ядром не персистится.
type EvaluatedRule struct {
	RuleID      string
	Version     int
	Passed      bool
	Confidence  float64 // [0,1]
	Signal      Direction
	BarSeq      int64
	TimestampMs int64
}

// Signal — то, что уходит наружу (нотифайер, консьюмеры шины),
// когда правило сработало с ненулевым направлением.
type Signal struct {
	Symbol     string
	Timeframe  string
	RuleID     string
	Direction  Direction
	Price      float64
	Confidence float64
	BarSeq     int64
}
