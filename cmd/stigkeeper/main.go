// Command stigkeeper manages STIG checklists for a set of assets: it loads
// the DISA CCI and STIG reference data, records review results and writes
// CKL, eMASS and findings reports.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/yourorg/stigkeeper/internal/db"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		switch {
		case errors.Is(err, db.ErrDuplicate), errors.Is(err, db.ErrNotFound),
			errors.Is(err, db.ErrInUse), errors.Is(err, db.ErrMissingParent):
			fmt.Fprintln(os.Stderr, err)
		default:
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
