package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// PointStatus mirrors the finalization state of the bar a point was
// produced from.
type PointStatus string

const (
	PointStatusPartial PointStatus = "partial"
	PointStatusFinal   PointStatus = "final"
)

// IndicatorPoint is one computed sample of an indicator series. A None
// value for an output key signals "inside warmup, not yet computable".
type IndicatorPoint struct {
	Time   time.Time                           `json:"time"`
	Values map[string]optional.Option[float64] `json:"values"`
	Status PointStatus                         `json:"status"`
}

// NewPoint builds a point with the given output values.
func NewPoint(t time.Time, status PointStatus, values map[string]optional.Option[float64]) IndicatorPoint {
	return IndicatorPoint{
		Time:   t,
		Values: values,
		Status: status,
	}
}

// WarmupPoint builds a point whose every output key is None.
func WarmupPoint(t time.Time, status PointStatus, keys ...string) IndicatorPoint {
	values := make(map[string]optional.Option[float64], len(keys))
	for _, k := range keys {
		values[k] = optional.None[float64]()
	}

	return IndicatorPoint{
		Time:   t,
		Values: values,
		Status: status,
	}
}

// Defined reports whether at least one output key carries a value.
func (p IndicatorPoint) Defined() bool {
	for _, v := range p.Values {
		if v.IsSome() {
			return true
		}
	}

	return false
}
