package chessmsg

import "time"

// RoomState is the read-only snapshot served over HTTP.
type RoomState struct {
	MatchID     string        `json:"match_id"`
	FEN         string        `json:"fen"`
	Turn        string        `json:"turn"`
	Status      string        `json:"status"`
	White       string        `json:"white,omitempty"`
	Black       string        `json:"black,omitempty"`
	Observers   int           `json:"observers"`
	DrawOfferBy string        `json:"draw_offer_by,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	LastResult  *ResultRecord `json:"last_result,omitempty"`
}

// ResultRecord is one finished game as listed by /results.
type ResultRecord struct {
	MatchID   string    `json:"match_id"`
	White     string    `json:"white,omitempty"`
	Black     string    `json:"black,omitempty"`
	Result    string    `json:"result"`
	Method    string    `json:"method"`
	FinalFEN  string    `json:"final_fen"`
	Plies     int       `json:"plies"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}
