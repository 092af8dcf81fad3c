// Package alarm owns alarm records and the periodic sweep that evaluates them
// against market data.
package alarm

import (
	"errors"
	"fmt"
	"math"

	"coin-alarm-bot/internal/market"
)

// Kind identifies the evaluation rule of an alarm. It never changes after creation.
type Kind string

const (
	KindPrice     Kind = "price"
	KindPercent   Kind = "percent"
	KindIndicator Kind = "indicator"
	KindWatchlist Kind = "watchlist"
)

// Price alarm directions. DirectionAbove and DirectionBelow are also stored on
// watchlist alarms for display.
const (
	DirectionBelow   = "below"
	DirectionAbove   = "above"
	DirectionPercent = "percent"
)

// Indicator names used by indicator alarms and as watchlist alarm sub-types.
const (
	IndicatorRSIOverbought = "rsi_overbought"
	IndicatorRSIOversold   = "rsi_oversold"
	WatchVolatility        = "volatility"
)

// MaxPercentPeriod bounds the lookback of percent alarms to one day.
const MaxPercentPeriod = 24 * 60

var (
	// ErrInvalidAlarm reports user supplied alarm parameters that fail validation.
	ErrInvalidAlarm = errors.New("invalid alarm")
	// ErrIndexOutOfRange reports a positional delete outside the stored list.
	ErrIndexOutOfRange = errors.New("alarm index out of range")
)

// Alarm is one persisted user rule. Field names follow the on-disk JSON layout:
// price and watchlist alarms keep their threshold in Target, percent alarms in
// Percent and indicator alarms in Value.
type Alarm struct {
	Coin      string  `json:"coin"`
	Type      Kind    `json:"type"`
	Direction string  `json:"direction,omitempty"`
	Target    float64 `json:"target,omitempty"`
	Currency  string  `json:"currency,omitempty"`
	BasePrice float64 `json:"base_price,omitempty"`

	Percent float64 `json:"percent,omitempty"`
	Period  int     `json:"period,omitempty"`

	Indicator string  `json:"indicator,omitempty"`
	Value     float64 `json:"value,omitempty"`

	AlarmType string `json:"alarm_type,omitempty"`

	Repeat       bool `json:"repeat"`
	Triggered    bool `json:"triggered"`
	TriggerCount int  `json:"trigger_count"`
}

// Threshold returns the numeric target regardless of which field the kind stores it in.
func (a Alarm) Threshold() float64 {
	switch a.Type {
	case KindPercent:
		return a.Percent
	case KindIndicator:
		return a.Value
	default:
		return a.Target
	}
}

// NewPriceAlarm builds a price threshold alarm. For DirectionPercent the target is a
// percentage and basePrice is the reference price recorded at creation.
func NewPriceAlarm(coin, direction string, target float64, currency string, basePrice float64) (Alarm, error) {
	coin = market.NormalizeCoin(coin)
	if coin == "" {
		return Alarm{}, fmt.Errorf("%w: coin is required", ErrInvalidAlarm)
	}
	if !finite(target) || target <= 0 {
		return Alarm{}, fmt.Errorf("%w: target must be positive", ErrInvalidAlarm)
	}
	switch direction {
	case DirectionAbove, DirectionBelow:
	case DirectionPercent:
		if !finite(basePrice) || basePrice <= 0 {
			return Alarm{}, fmt.Errorf("%w: a base price is required for percent moves", ErrInvalidAlarm)
		}
	default:
		return Alarm{}, fmt.Errorf("%w: direction must be above, below or percent", ErrInvalidAlarm)
	}
	return Alarm{
		Coin:      coin,
		Type:      KindPrice,
		Direction: direction,
		Target:    target,
		Currency:  market.NormalizeCurrency(currency),
		BasePrice: basePrice,
	}, nil
}

// NewPercentAlarm builds a percent-change alarm over periodMinutes.
func NewPercentAlarm(coin string, percent float64, periodMinutes int, repeat bool) (Alarm, error) {
	coin = market.NormalizeCoin(coin)
	if coin == "" {
		return Alarm{}, fmt.Errorf("%w: coin is required", ErrInvalidAlarm)
	}
	if !finite(percent) || percent <= 0 {
		return Alarm{}, fmt.Errorf("%w: percent must be positive", ErrInvalidAlarm)
	}
	if periodMinutes <= 0 || periodMinutes > MaxPercentPeriod {
		return Alarm{}, fmt.Errorf("%w: period must be between 1 and %d minutes", ErrInvalidAlarm, MaxPercentPeriod)
	}
	return Alarm{
		Coin:    coin,
		Type:    KindPercent,
		Percent: percent,
		Period:  periodMinutes,
		Repeat:  repeat,
	}, nil
}

// NewIndicatorAlarm builds an RSI threshold alarm.
func NewIndicatorAlarm(coin, indicator string, value float64, repeat bool) (Alarm, error) {
	coin = market.NormalizeCoin(coin)
	if coin == "" {
		return Alarm{}, fmt.Errorf("%w: coin is required", ErrInvalidAlarm)
	}
	if indicator != IndicatorRSIOverbought && indicator != IndicatorRSIOversold {
		return Alarm{}, fmt.Errorf("%w: indicator must be %s or %s", ErrInvalidAlarm, IndicatorRSIOverbought, IndicatorRSIOversold)
	}
	if !finite(value) || value <= 0 || value >= 100 {
		return Alarm{}, fmt.Errorf("%w: RSI value must be between 0 and 100", ErrInvalidAlarm)
	}
	return Alarm{
		Coin:      coin,
		Type:      KindIndicator,
		Indicator: indicator,
		Value:     value,
		Repeat:    repeat,
	}, nil
}

// NewWatchlistAlarm builds a volatility or RSI alarm for a watched coin.
func NewWatchlistAlarm(coin, alarmType string, target float64, currency string) (Alarm, error) {
	coin = market.NormalizeCoin(coin)
	if coin == "" {
		return Alarm{}, fmt.Errorf("%w: coin is required", ErrInvalidAlarm)
	}
	if !finite(target) || target <= 0 {
		return Alarm{}, fmt.Errorf("%w: value must be positive", ErrInvalidAlarm)
	}
	direction := DirectionAbove
	switch alarmType {
	case WatchVolatility, IndicatorRSIOverbought:
	case IndicatorRSIOversold:
		direction = DirectionBelow
	default:
		return Alarm{}, fmt.Errorf("%w: watchlist alarm must be volatility, %s or %s", ErrInvalidAlarm, IndicatorRSIOverbought, IndicatorRSIOversold)
	}
	if alarmType != WatchVolatility && target >= 100 {
		return Alarm{}, fmt.Errorf("%w: RSI value must be between 0 and 100", ErrInvalidAlarm)
	}
	return Alarm{
		Coin:      coin,
		Type:      KindWatchlist,
		Direction: direction,
		Target:    target,
		Currency:  market.NormalizeCurrency(currency),
		AlarmType: alarmType,
	}, nil
}

// finite rejects NaN and ±Inf, which compare false against every bound and
// cannot be encoded as JSON.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// RemoveAt returns a copy of alarms without the entry at index (0-based).
func RemoveAt(alarms []Alarm, index int) ([]Alarm, error) {
	if index < 0 || index >= len(alarms) {
		return alarms, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index+1, len(alarms))
	}
	out := make([]Alarm, 0, len(alarms)-1)
	out = append(out, alarms[:index]...)
	return append(out, alarms[index+1:]...), nil
}
