package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"reelscout/internal/runner"
)

var (
	flagEmbedID      string
	flagEmbedURL     string
	flagEmbedHeaders []string
)

var embedCmd = &cobra.Command{
	Use:     "embed",
	Short:   "Resolve one embed page with a specific embed scraper",
	Example: `  reelscout embed --id upcloud --url https://megacloud.example/embed-2/v3/e-1/abc --header Referer=https://flixhq.to/`,
	RunE:    embedRun,
}

func init() {
	embedCmd.Flags().StringVar(&flagEmbedID, "id", "", "Embed scraper id")
	embedCmd.Flags().StringVar(&flagEmbedURL, "url", "", "Embed page URL")
	embedCmd.Flags().StringArrayVarP(&flagEmbedHeaders, "header", "H", nil, "Request header as Name=Value (repeatable)")
	embedCmd.MarkFlagRequired("id")
	embedCmd.MarkFlagRequired("url")
}

func embedRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	headers, err := parseHeaders(flagEmbedHeaders)
	if err != nil {
		return err
	}

	e, err := newEngine()
	if err != nil {
		return err
	}

	res, err := e.runner.RunEmbedScraper(ctx, runner.EmbedInput{
		ID:      flagEmbedID,
		URL:     flagEmbedURL,
		Headers: headers,
	}, runner.EmbedOptions{})
	if err != nil {
		return err
	}
	defer res.Close()

	if !flagTable {
		return printJSON(res)
	}
	for _, s := range res.Streams {
		fmt.Printf("%s\t%s\t%s\n", s.ID, s.Kind, s.Locator())
	}
	return nil
}

func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("header %q must be Name=Value", h)
		}
		headers[strings.TrimSpace(name)] = value
	}
	return headers, nil
}
