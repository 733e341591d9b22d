// Package category implements the per-token lifecycle state machine and the
// manager that owns every live machine.
package category

import (
	"pumpfun-scanner/config"
)

// Category is a token's lifecycle state. The variant set is closed.
type Category string

const (
	New      Category = "NEW"
	Low      Category = "LOW"
	Medium   Category = "MEDIUM"
	High     Category = "HIGH"
	Aim      Category = "AIM"
	Archive  Category = "ARCHIVE"
	Bin      Category = "BIN"
	Complete Category = "COMPLETE"
)

// All lists every category variant.
var All = []Category{New, Low, Medium, High, Aim, Archive, Bin, Complete}

// Active lists the categories rehydrated at startup.
var Active = []Category{New, Low, Medium, High, Aim}

// Valid reports whether c is one of the eight variants.
func (c Category) Valid() bool {
	switch c {
	case New, Low, Medium, High, Aim, Archive, Bin, Complete:
		return true
	}
	return false
}

// Terminal reports whether c is a sink state.
func (c Category) Terminal() bool {
	return c == Bin || c == Complete
}

// String returns the category name.
func (c Category) String() string { return string(c) }

// Midpoint returns the middle of a category's market-cap range, used for the
// synthetic rehydrate update.
func Midpoint(t config.ThresholdConfig, c Category) float64 {
	switch c {
	case Low:
		return t.LowMax / 2
	case Medium:
		return (t.LowMax + t.MediumMax) / 2
	case High:
		return (t.MediumMax + t.HighMax) / 2
	case Aim:
		return (t.AimMin + t.AimMax) / 2
	default:
		return 0
	}
}
