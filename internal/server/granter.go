package server

import (
	"context"

	"github.com/dmitrijs2005/hotspotpay/internal/logging"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
	"github.com/dmitrijs2005/hotspotpay/internal/server/services"
)

// LogGranter records access grants in the log. Router provisioning is
// driven from these lines until a router-side granter exists.
type LogGranter struct {
	logger logging.Logger
}

var _ services.AccessGranter = (*LogGranter)(nil)

func NewLogGranter(logger logging.Logger) *LogGranter {
	return &LogGranter{logger: logger}
}

func (g *LogGranter) Grant(ctx context.Context, p *models.Payment) error {
	args := []any{
		"payment_id", p.ID,
		"router_id", p.RouterID,
		"package_id", p.PackageID,
		"mac_address", p.MACAddress,
		"ip_address", p.IPAddress,
	}
	if p.PackageExpiryTime != nil {
		args = append(args, "expires_at", p.PackageExpiryTime.UTC())
	}
	g.logger.Info(ctx, "access granted", args...)
	return nil
}
