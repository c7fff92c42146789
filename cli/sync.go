// ABOUTME: Sync CLI command
// ABOUTME: Runs a bulk refresh against the upstream CRM
package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/harperreed/dealsync/service"
)

// SyncCommand runs a bulk synchronization.
func SyncCommand(svc *service.Service, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	force := fs.Bool("force", false, "Re-fetch every deal, ignoring already-stored ones")
	_ = fs.Parse(args)

	ctx := context.Background()

	if *force {
		fmt.Println("Forcing full resync...")
	} else {
		fmt.Println("Syncing new deals...")
	}

	if err := svc.Refresh(ctx, *force); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	deals, err := svc.Deals()
	if err != nil {
		return fmt.Errorf("failed to read synced deals: %w", err)
	}

	fmt.Printf("✓ Sync complete, %d deals stored\n", len(deals))
	return nil
}
