package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
)

func (a *App) Routers(ctx context.Context, sub string, args []string) error {
	switch sub {
	case "set-password":
		return a.routersSetPassword(ctx, args)
	case "check":
		return a.routersCheck(ctx)
	default:
		return fmt.Errorf("%w: unknown routers command %q", ErrUsage, sub)
	}
}

func (a *App) routersSetPassword(ctx context.Context, args []string) error {
	fs := newFlagSet("routers set-password", a.out)
	userID := fs.String("user", "", "owning user id")
	id := fs.String("id", "", "router id")
	remove := fs.Bool("clear", false, "remove the stored password")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("user", *userID); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}

	var password string
	if !*remove {
		secret, err := GetSecret(a.reader, "Router admin password", a.out)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(secret)
		if len(secret) == 0 {
			return fmt.Errorf("%w: empty password, use -clear to remove it", ErrUsage)
		}
		password = string(secret)
	}

	r, err := a.backend.Routers.SetPassword(ctx, *userID, *id, password)
	if err != nil {
		return err
	}
	if *remove {
		fmt.Fprintf(a.out, "cleared password of router %s (%s)\n", r.ID, r.Name)
		return nil
	}
	fmt.Fprintf(a.out, "stored password of router %s (%s)\n", r.ID, r.Name)
	return nil
}

// routersCheck reports every router password that no longer opens under the
// configured key. It fails when any password is unreadable.
func (a *App) routersCheck(ctx context.Context) error {
	results, err := a.backend.Routers.Check(ctx)
	if err != nil {
		return err
	}

	bad := 0
	for _, r := range results {
		if r.OK() {
			fmt.Fprintf(a.out, "ok     %s user=%s name=%s\n", r.Router.ID, r.Router.UserID, r.Router.Name)
			continue
		}
		bad++
		fmt.Fprintf(a.out, "FAILED %s user=%s name=%s: %v\n", r.Router.ID, r.Router.UserID, r.Router.Name, r.Err)
	}
	fmt.Fprintf(a.out, "%d routers, %d unreadable\n", len(results), bad)
	if bad > 0 {
		return fmt.Errorf("%w: %d router passwords need to be set again", common.ErrDecryption, bad)
	}
	return nil
}
