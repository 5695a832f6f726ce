package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Router is a hotspot device owned by an operator. Only the fields the
// payment core needs are modelled here.
type Router struct {
	ID                string
	UserID            string
	Name              string
	Host              string
	Port              int
	Username          string
	EncryptedPassword []byte
	UseHTTPS          bool
}

// Package is a sellable access plan on a router.
type Package struct {
	ID            string
	RouterID      string
	Name          string
	PackageType   string
	DurationHours int
	Price         decimal.Decimal
	Currency      string
	IsActive      bool
}

// Duration returns the access period the package grants.
func (p *Package) Duration() time.Duration {
	return time.Duration(p.DurationHours) * time.Hour
}
