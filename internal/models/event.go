package models

// EventKind — закрытое множество видов событий на шине.
type EventKind string

const (
	KindTick       EventKind = "tick"
	KindMicrobar   EventKind = "microbar"
	KindBarFinal   EventKind = "bar_final"
	KindAggregate  EventKind = "aggregate"
	KindRuleResult EventKind = "rule_result"
)

// Topic — ключ подписки: (kind, symbol[, timeframe]).
// Пустые Symbol/Timeframe у подписчика работают как wildcard.
type Topic struct {
	Kind      EventKind
	Symbol    string
	Timeframe string
}

// Event — запечатанный sum-type: реализации только в этом пакете,
// хендлеры матчатся по Kind() без доверия к нетипизированным формам.
type Event interface {
	Kind() EventKind
	Topic() Topic
	sealed()
}

type TickEvent struct{ Tick Tick }

func (e TickEvent) Kind() EventKind { return KindTick }
func (e TickEvent) Topic() Topic    { return Topic{Kind: KindTick, Symbol: e.Tick.Symbol} }
func (e TickEvent) sealed()         {}

type MicrobarEvent struct{ Microbar Microbar }

func (e MicrobarEvent) Kind() EventKind { return KindMicrobar }
func (e MicrobarEvent) Topic() Topic {
	return Topic{Kind: KindMicrobar, Symbol: e.Microbar.Symbol, Timeframe: e.Microbar.Timeframe}
}
func (e MicrobarEvent) sealed() {}

type BarFinalEvent struct{ Bar Bar }

func (e BarFinalEvent) Kind() EventKind { return KindBarFinal }
func (e BarFinalEvent) Topic() Topic {
	return Topic{Kind: KindBarFinal, Symbol: e.Bar.Symbol, Timeframe: e.Bar.Timeframe}
}
func (e BarFinalEvent) sealed() {}

type AggregateEvent struct{ Aggregate Aggregate }

func (e AggregateEvent) Kind() EventKind { return KindAggregate }
func (e AggregateEvent) Topic() Topic {
	return Topic{Kind: KindAggregate, Symbol: e.Aggregate.Symbol}
}
func (e AggregateEvent) sealed() {}

type RuleResultEvent struct {
	Symbol    string
	Timeframe string
	Result    EvaluatedRule
}

func (e RuleResultEvent) Kind() EventKind { return KindRuleResult }
func (e RuleResultEvent) Topic() Topic {
	return Topic{Kind: KindRuleResult, Symbol: e.Symbol, Timeframe: e.Timeframe}
}
func (e RuleResultEvent) sealed() {}
