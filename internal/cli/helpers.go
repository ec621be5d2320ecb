package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/sololeveling/lifesystem/internal/daemon"
	"github.com/sololeveling/lifesystem/internal/domain"
)

// open wires the daemon for a one-shot command and seeds the built-in
// catalog on first use.
func (a *app) open(ctx context.Context) (*daemon.Daemon, error) {
	d, err := daemon.NewWithConfig(a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	n, err := d.DB.CountTemplates(ctx)
	if err == nil && n == 0 {
		_, err = d.ReloadCatalog(ctx)
	}
	if err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// resolveUser accepts a user id or username.
func resolveUser(ctx context.Context, d *daemon.Daemon, ref string) (*domain.User, error) {
	return d.Engine.Users.Resolve(ctx, ref)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
