package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"reelscout/internal/media"
	"reelscout/internal/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List registered sources and embeds in the order they are tried",
	RunE:  providersRun,
}

type providerRow struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Rank           int      `json:"rank"`
	Kind           string   `json:"kind"`
	Flags          []string `json:"flags"`
	Disabled       bool     `json:"disabled"`
	ExternalSource bool     `json:"externalSource"`
	MediaTypes     []string `json:"mediaTypes,omitempty"`
}

func providersRun(cmd *cobra.Command, args []string) error {
	e, err := newEngine()
	if err != nil {
		return err
	}

	rows := lo.Map(append(e.registry.Sources(), e.registry.Embeds()...), func(d provider.Descriptor, _ int) providerRow {
		return providerRow{
			ID:             d.ID,
			Name:           d.Name,
			Rank:           d.Rank,
			Kind:           string(d.Kind),
			Flags:          lo.Map(d.Flags.List(), func(f media.Flag, _ int) string { return string(f) }),
			Disabled:       d.Disabled,
			ExternalSource: d.ExternalSource,
			MediaTypes:     d.MediaTypes(),
		}
	})

	if !flagTable {
		return printJSON(rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tRANK\tSTATUS\tFLAGS")
	for _, r := range rows {
		status := "enabled"
		switch {
		case r.Disabled:
			status = "disabled"
		case lo.Contains(cfg.Exclude, r.ID):
			status = "excluded"
		case r.ExternalSource:
			status = "external"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.Kind, r.Rank, status, strings.Join(r.Flags, ","))
	}
	return w.Flush()
}
