package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dmitrijs2005/hotspotpay/internal/common"
	"github.com/dmitrijs2005/hotspotpay/internal/server/models"
	"github.com/dmitrijs2005/hotspotpay/internal/server/services"
)

func (a *App) Credentials(ctx context.Context, sub string, args []string) error {
	switch sub {
	case "set":
		return a.credentialsSet(ctx, args)
	case "list":
		return a.credentialsList(ctx, args)
	case "check":
		return a.credentialsCheck(ctx)
	case "verify":
		return a.credentialsVerify(ctx, args)
	case "activate", "deactivate":
		return a.credentialsToggle(ctx, sub, args)
	default:
		return fmt.Errorf("%w: unknown credentials command %q", ErrUsage, sub)
	}
}

func (a *App) credentialsSet(ctx context.Context, args []string) error {
	fs := newFlagSet("credentials set", a.out)
	userID := fs.String("user", "", "owning user id")
	id := fs.String("id", "", "record to update; empty creates a new record")
	provider := fs.String("provider", models.ProviderIntaSend, "payment provider")
	env := fs.String("env", "", "sandbox or live")
	apiKey := fs.String("api-key", "", "publishable api key")
	rotate := fs.Bool("secret", false, "prompt for a new private key when updating")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("user", *userID); err != nil {
		return err
	}

	creds := a.backend.Credentials

	if *id == "" {
		if *apiKey == "" {
			k, err := GetSimpleText(a.reader, "Publishable API key", a.out)
			if err != nil {
				return err
			}
			*apiKey = k
		}
		secret, err := GetSecret(a.reader, "Private key", a.out)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(secret)

		rec, err := creds.Create(ctx, *userID, services.NewCredential{
			Provider:    *provider,
			APIKey:      *apiKey,
			PrivateKey:  string(secret),
			Environment: *env,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "created %s credential %s (%s)\n", models.ProviderDisplayName(rec.Provider), rec.ID, rec.Environment)
		return nil
	}

	var upd services.CredentialUpdate
	if *apiKey != "" {
		upd.APIKey = apiKey
	}
	if *env != "" {
		upd.Environment = env
	}
	if *rotate {
		secret, err := GetSecret(a.reader, "New private key", a.out)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(secret)
		s := string(secret)
		upd.PrivateKey = &s
	}

	rec, err := creds.Update(ctx, *userID, *id, upd)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "updated credential %s\n", rec.ID)
	return nil
}

func (a *App) credentialsList(ctx context.Context, args []string) error {
	fs := newFlagSet("credentials list", a.out)
	userID := fs.String("user", "", "owning user id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("user", *userID); err != nil {
		return err
	}

	recs, err := a.backend.Credentials.List(ctx, *userID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROVIDER\tENV\tACTIVE\tAPI KEY\tUPDATED")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n", rec.ID, rec.Provider, rec.Environment, rec.IsActive,
			maskKey(rec.APIKey), rec.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

// credentialsCheck reports every record that no longer decrypts under the
// configured key. It fails when any record is unreadable.
func (a *App) credentialsCheck(ctx context.Context) error {
	results, err := a.backend.Credentials.Probe(ctx)
	if err != nil {
		return err
	}

	bad := 0
	for _, r := range results {
		if r.OK() {
			fmt.Fprintf(a.out, "ok     %s user=%s provider=%s\n", r.Record.ID, r.Record.UserID, r.Record.Provider)
			continue
		}
		bad++
		fmt.Fprintf(a.out, "FAILED %s user=%s provider=%s: %v\n", r.Record.ID, r.Record.UserID, r.Record.Provider, r.Err)
	}
	fmt.Fprintf(a.out, "%d records, %d unreadable\n", len(results), bad)
	if bad > 0 {
		return fmt.Errorf("%w: %d credential records need their private key set again", common.ErrDecryption, bad)
	}
	return nil
}

func (a *App) credentialsVerify(ctx context.Context, args []string) error {
	fs := newFlagSet("credentials verify", a.out)
	userID := fs.String("user", "", "owning user id")
	id := fs.String("id", "", "credential id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("user", *userID); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}

	candidate, err := GetSecret(a.reader, "Private key", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(candidate)

	ok, err := a.backend.Credentials.Verify(ctx, *userID, *id, string(candidate))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "private key does NOT match")
		return fmt.Errorf("%w: private key mismatch", common.ErrValidation)
	}
	fmt.Fprintln(a.out, "private key matches")
	return nil
}

func (a *App) credentialsToggle(ctx context.Context, sub string, args []string) error {
	fs := newFlagSet("credentials "+sub, a.out)
	userID := fs.String("user", "", "owning user id")
	id := fs.String("id", "", "credential id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("user", *userID); err != nil {
		return err
	}
	if err := required("id", *id); err != nil {
		return err
	}

	var (
		rec *models.CredentialRecord
		err error
	)
	if sub == "activate" {
		rec, err = a.backend.Credentials.Activate(ctx, *userID, *id)
	} else {
		rec, err = a.backend.Credentials.Deactivate(ctx, *userID, *id)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "credential %s active=%t\n", rec.ID, rec.IsActive)
	return nil
}

func maskKey(k string) string {
	if len(k) <= 8 {
		return "****"
	}
	return k[:4] + "..." + k[len(k)-4:]
}
