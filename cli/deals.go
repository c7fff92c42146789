// ABOUTME: Deal CLI commands
// ABOUTME: Handles listing, showing and hiding stored canonical deals
package cli

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/dealsync/models"
	"github.com/harperreed/dealsync/service"
)

// ListDealsCommand prints every stored deal, skipping hidden ones.
func ListDealsCommand(svc *service.Service, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	showHidden := fs.Bool("all", false, "Include hidden deals")
	_ = fs.Parse(args)

	deals, err := svc.Deals()
	if err != nil {
		return fmt.Errorf("failed to list deals: %w", err)
	}
	hidden, err := svc.HiddenDealIDs()
	if err != nil {
		return fmt.Errorf("failed to load hidden deals: %w", err)
	}

	shown := 0
	for _, deal := range deals {
		if hidden[deal.ID] && !*showHidden {
			continue
		}
		shown++
		marker := ""
		if hidden[deal.ID] {
			marker = " (hidden)"
		}
		fmt.Printf("[%d] %s%s\n", deal.ID, deal.Title, marker)
		if name := deal.ClientName(); name != "" {
			fmt.Printf("    Client: %s\n", name)
		}
		if deal.PipelineName != "" {
			fmt.Printf("    Pipeline: %s\n", deal.PipelineName)
		}
		if len(deal.FormationLabels) > 0 {
			fmt.Printf("    Formations: %s\n", strings.Join(deal.FormationLabels, ", "))
		}
	}

	if shown == 0 {
		fmt.Println("No deals stored. Run 'dealsync sync' first.")
	} else {
		fmt.Printf("\nTotal: %d deals\n", shown)
	}
	return nil
}

// GetDealCommand prints one deal in full.
func GetDealCommand(svc *service.Service, args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	refresh := fs.Bool("refresh", false, "Re-fetch from upstream before showing")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: dealsync deals get <id> [--refresh]")
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid deal id %q", fs.Arg(0))
	}

	deal, stale, err := svc.Deal(context.Background(), id, *refresh)
	if err != nil {
		return fmt.Errorf("failed to get deal %d: %w", id, err)
	}
	if deal == nil {
		fmt.Printf("Deal %d not found\n", id)
		return nil
	}
	if stale {
		fmt.Println("! Upstream unavailable, showing cached data")
	}
	printDeal(deal)
	return nil
}

// HideDealCommand hides a deal from listings.
func HideDealCommand(svc *service.Service, args []string) error {
	fs := flag.NewFlagSet("hide", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: dealsync deals hide <id>")
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid deal id %q", fs.Arg(0))
	}

	if err := svc.HideDeal(id); err != nil {
		return fmt.Errorf("failed to hide deal %d: %w", id, err)
	}
	fmt.Printf("✓ Deal %d hidden\n", id)
	return nil
}

func printDeal(deal *models.DealRecord) {
	fmt.Printf("[%d] %s\n", deal.ID, deal.Title)
	if name := deal.ClientName(); name != "" {
		fmt.Printf("  Client: %s\n", name)
	}
	if deal.Client != nil && deal.Client.Address != "" {
		fmt.Printf("  Address: %s\n", deal.Client.Address)
	}
	if deal.PipelineName != "" {
		fmt.Printf("  Pipeline: %s\n", deal.PipelineName)
	}
	if deal.WonAt != nil {
		fmt.Printf("  Won: %s\n", deal.WonAt.Format(time.DateOnly))
	}
	for _, field := range []struct{ label, value string }{
		{"Location", deal.Location},
		{"Funded", deal.Funded},
		{"Certifying", deal.Certifying},
		{"Remote", deal.Remote},
	} {
		if field.value != "" {
			fmt.Printf("  %s: %s\n", field.label, field.value)
		}
	}
	if len(deal.FormationLabels) > 0 {
		fmt.Printf("  Formations: %s\n", strings.Join(deal.FormationLabels, ", "))
	}
	if len(deal.TrainingProducts) > 0 {
		fmt.Println("  Training products:")
		for _, product := range deal.TrainingProducts {
			printProduct(product)
		}
	}
	if len(deal.ExtraProducts) > 0 {
		fmt.Println("  Extra products:")
		for _, product := range deal.ExtraProducts {
			printProduct(product)
		}
	}
	if len(deal.Notes) > 0 {
		fmt.Printf("  Notes: %d\n", len(deal.Notes))
	}
	if len(deal.Attachments) > 0 {
		fmt.Printf("  Attachments: %d\n", len(deal.Attachments))
	}
}

func printProduct(product models.DealProduct) {
	line := fmt.Sprintf("    - %s", product.Name)
	if product.Code != "" {
		line += fmt.Sprintf(" [%s]", product.Code)
	}
	if product.Quantity > 0 {
		line += fmt.Sprintf(" x%g", product.Quantity)
	}
	if product.RecommendedHours != nil {
		line += fmt.Sprintf(" (%gh)", *product.RecommendedHours)
	} else if product.RecommendedHoursText != "" {
		line += fmt.Sprintf(" (%s)", product.RecommendedHoursText)
	}
	fmt.Println(line)
}
