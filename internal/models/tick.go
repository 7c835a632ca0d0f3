package models

// Side агрессора сделки: "BUY"/"SELL" или пустая строка, если фид не отдаёт.
type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Tick — сырой трейд от фида. Эфемерный: никогда не персистится,
// потребляется только агрегатором.
type Tick struct {
	Symbol      string
	TimestampMs int64
	Price       float64
	Size        float64
	Side        Side
}
