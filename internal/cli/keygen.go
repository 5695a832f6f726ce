package cli

import (
	"fmt"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/cryptox"
	"github.com/dmitrijs2005/hotspotpay/internal/server/config"
)

// Keygen prints a fresh vault key and how to install it.
func (a *App) Keygen() error {
	key := cryptox.GenerateKey()
	defer common.WipeByteArray(key)

	encoded := cryptox.EncodeKey(key)
	fmt.Fprintln(a.out, encoded)
	fmt.Fprintf(a.out, "\nexport %s=%s\n", config.VaultKeyEnvVar, encoded)
	fmt.Fprintln(a.out, "Store this key safely. Credentials encrypted under a lost key cannot be recovered.")
	return nil
}
