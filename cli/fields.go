// ABOUTME: Fields CLI command
// ABOUTME: Shows the custom-field option map the resolver is serving
package cli

import (
	"context"
	"flag"
	"fmt"
	"sort"

	"github.com/harperreed/dealsync/fields"
)

// FieldsCommand prints the currently loaded custom-field option map.
func FieldsCommand(resolver *fields.Resolver, args []string) error {
	fs := flag.NewFlagSet("fields", flag.ExitOnError)
	refresh := fs.Bool("refresh", false, "Drop the cached option map and refetch")
	_ = fs.Parse(args)

	if *refresh {
		resolver.Reset()
	}

	options := resolver.Load(context.Background())
	if len(options) == 0 {
		fmt.Println("No field definitions available.")
		return nil
	}

	aliases := make([]string, 0, len(options))
	for alias := range options {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	for _, alias := range aliases {
		fmt.Printf("%s:\n", alias)
		opts := options[alias]
		ids := make([]string, 0, len(opts))
		for id := range opts {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("  %s → %s\n", id, opts[id])
		}
	}
	return nil
}
