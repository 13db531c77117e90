package gateway

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"gwdiag/internal/domain"
)

// The gateway speaks JSON frames over a single websocket connection.
// Every client request carries a monotonically increasing id that the
// gateway echoes in its reply; tick frames carry the subscription id.

const (
	opHandshake   = "handshake"
	opResolve     = "resolve"
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
	opTick        = "tick"
	opHistory     = "history"
)

// Reply codes
const (
	codeOK           = "ok"
	codeSessionInUse = "session_in_use"
	codeRejected     = "rejected"
)

// handshakeRequest structure
type handshakeRequest struct {
	Op        string `json:"op"`
	SessionID int    `json:"session_id"`
	Account   string `json:"account,omitempty"`
}

// resolveRequest structure
type resolveRequest struct {
	Op       string `json:"op"`
	ID       uint64 `json:"id"`
	ISIN     string `json:"isin,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	Currency string `json:"currency,omitempty"`
	Exchange string `json:"exchange,omitempty"`
}

// subscribeRequest structure
type subscribeRequest struct {
	Op         string `json:"op"`
	ID         uint64 `json:"id"`
	ContractID int64  `json:"contract_id"`
}

// unsubscribeRequest structure
type unsubscribeRequest struct {
	Op string `json:"op"`
	ID uint64 `json:"id"`
}

// historyRequest structure
type historyRequest struct {
	Op         string `json:"op"`
	ID         uint64 `json:"id"`
	ContractID int64  `json:"contract_id"`
	Start      string `json:"start"` // RFC3339
	End        string `json:"end"`   // RFC3339
	BarSize    string `json:"bar_size"`
}

// contractPayload is one resolution candidate as the gateway reports it
type contractPayload struct {
	ContractID int64  `json:"contract_id"`
	Symbol     string `json:"symbol"`
	Currency   string `json:"currency"`
	Exchange   string `json:"exchange"`
}

func (c contractPayload) toDomain() domain.ResolvedContract {
	return domain.ResolvedContract{
		ContractID: c.ContractID,
		Symbol:     c.Symbol,
		Currency:   c.Currency,
		Exchange:   c.Exchange,
	}
}

// wireFloat is one numeric field as the gateway sends it. Depending on
// gateway build the not-a-number sentinel arrives as JSON null or as the
// string "NaN"; both decode to absent rather than failing the frame (a
// decode error in the read loop would kill the whole session over one
// sentinel tick). The large-float sentinel is left to domain.PresentField.
type wireFloat struct {
	v *float64
}

func (w *wireFloat) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `"NaN"` || s == `"nan"` {
		w.v = nil
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	w.v = &f
	return nil
}

func (w wireFloat) MarshalJSON() ([]byte, error) {
	if w.v == nil {
		return []byte(`"NaN"`), nil
	}
	return json.Marshal(*w.v)
}

func (w wireFloat) ptr() *float64 { return w.v }

// tickPayload carries raw quote fields. Pointers because the gateway omits
// fields it has no value for; a field that is present but holds a sentinel
// decodes to an absent wireFloat.
type tickPayload struct {
	Last   *wireFloat `json:"last,omitempty"`
	Bid    *wireFloat `json:"bid,omitempty"`
	Ask    *wireFloat `json:"ask,omitempty"`
	Close  *wireFloat `json:"close,omitempty"`
	Volume *wireFloat `json:"volume,omitempty"`
	TS     int64      `json:"ts"` // Milliseconds since epoch
}

// barPayload is one OHLCV record on the wire
type barPayload struct {
	Time   string    `json:"time"` // RFC3339
	Open   wireFloat `json:"open"`
	High   wireFloat `json:"high"`
	Low    wireFloat `json:"low"`
	Close  wireFloat `json:"close"`
	Volume wireFloat `json:"volume"`
}

// toDomain converts one wire bar. ok is false when any price field is the
// absent sentinel: such a bar is dropped rather than fabricated as zeros.
// A sentinel volume alone keeps the bar, with volume zero.
func (b barPayload) toDomain() (domain.Bar, bool, error) {
	ts, err := time.Parse(time.RFC3339, b.Time)
	if err != nil {
		return domain.Bar{}, false, err
	}

	open, high, low, cls := b.Open.ptr(), b.High.ptr(), b.Low.ptr(), b.Close.ptr()
	if open == nil || high == nil || low == nil || cls == nil {
		return domain.Bar{}, false, nil
	}

	var volume float64
	if v := b.Volume.ptr(); v != nil {
		volume = *v
	}

	return domain.Bar{
		Time:   ts,
		Open:   decimal.NewFromFloat(*open),
		High:   decimal.NewFromFloat(*high),
		Low:    decimal.NewFromFloat(*low),
		Close:  decimal.NewFromFloat(*cls),
		Volume: decimal.NewFromFloat(volume),
	}, true, nil
}

// gatewayFrame is any inbound frame from the gateway
type gatewayFrame struct {
	Op        string            `json:"op"`
	ID        uint64            `json:"id,omitempty"`
	Code      string            `json:"code,omitempty"`
	Msg       string            `json:"msg,omitempty"`
	Contracts []contractPayload `json:"contracts,omitempty"`
	Tick      *tickPayload      `json:"tick,omitempty"`
	Bars      []barPayload      `json:"bars,omitempty"`
}
