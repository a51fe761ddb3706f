package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"reelscout/internal/caption"
	"reelscout/internal/media"
	"reelscout/internal/routing"
	"reelscout/internal/runner"
	"reelscout/internal/tmdb"
)

// routeLevels is how many fetch levels --routes reports per stream.
const routeLevels = 4

var (
	flagType     string
	flagTMDB     string
	flagTitle    string
	flagYear     int
	flagIMDB     string
	flagSeason   int
	flagEpisode  int
	flagOnly     []string
	flagExclude  []string
	flagMagnet   string
	flagAll      bool
	flagRoutes   bool
	flagProgress bool
	flagLanguage string
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Resolve a movie or episode by trying sources in rank order",
	Example: `  reelscout source --type movie --tmdb 9552
  reelscout source --type show --tmdb 1396 --season 2 --episode 5 --all
  reelscout source --type movie --tmdb 9552 --title "The Exorcist" --year 1973 --id flixhq`,
	RunE: sourceRun,
}

func init() {
	f := sourceCmd.Flags()
	f.StringVar(&flagType, "type", "movie", "Media type: movie | show")
	f.StringVar(&flagTMDB, "tmdb", "", "TMDB id")
	f.StringVar(&flagTitle, "title", "", "Title; skips the TMDB lookup")
	f.IntVar(&flagYear, "year", 0, "Release year, used with --title")
	f.StringVar(&flagIMDB, "imdb", "", "IMDB id, used with --title")
	f.IntVarP(&flagSeason, "season", "s", 0, "Season number")
	f.IntVarP(&flagEpisode, "episode", "e", 0, "Episode number")
	f.StringSliceVar(&flagOnly, "id", nil, "Only try these source ids")
	f.StringSliceVar(&flagExclude, "exclude", nil, "Never try these source ids")
	f.StringVar(&flagMagnet, "magnet", "", "Magnet URI for torrent-backed sources")
	f.BoolVar(&flagAll, "all", false, "Also resolve embeds down to streams")
	f.BoolVar(&flagRoutes, "routes", false, "Report direct/proxied routing per fetch level")
	f.BoolVar(&flagProgress, "progress", false, "Print progress to stderr")
	f.StringVarP(&flagLanguage, "language", "l", "", "Preferred caption language (default: subs_language)")
	sourceCmd.MarkFlagRequired("tmdb")
}

func sourceRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newEngine()
	if err != nil {
		return err
	}

	q, err := buildQuery(ctx, e)
	if err != nil {
		return err
	}
	logger.WithField("media", fmt.Sprint(q)).Debug("resolving")

	opts := runner.SourceOptions{
		ExcludeIDs: append(append([]string(nil), cfg.Exclude...), flagExclude...),
		Only:       flagOnly,
		MagnetURI:  flagMagnet,
	}
	if flagProgress {
		opts.Progress = func(ev runner.Event) {
			fmt.Fprintf(os.Stderr, "[%d/%d] %-10s %3.0f%%  overall %3.0f%%\n", ev.Attempt, ev.Total, ev.ProviderID, ev.Percent, ev.Overall)
		}
	}

	var res *runner.RunResult
	if flagAll {
		res, err = e.runner.RunAll(ctx, q, runner.AllOptions{SourceOptions: opts})
	} else {
		res, err = e.runner.RunSourceScraper(ctx, q, opts)
	}
	recordRun(q, res, err)
	if err != nil {
		return explainRunError(err)
	}
	defer res.Close()

	if err := printResult(res); err != nil {
		return err
	}

	// Resources such as a torrent relay only live as long as the process.
	if flagMagnet != "" && len(res.Streams) > 0 {
		fmt.Fprintln(os.Stderr, "serving stream until interrupted")
		<-ctx.Done()
	}
	return nil
}

// buildQuery takes the query from flags when --title is given, and from TMDB otherwise.
func buildQuery(ctx context.Context, e *engine) (media.Query, error) {
	if flagType != "movie" && flagType != "show" {
		return nil, fmt.Errorf("--type must be movie or show, got %q", flagType)
	}
	if flagType == "show" && (flagSeason < 0 || flagEpisode < 1) {
		return nil, errors.New("shows need --season and --episode")
	}

	if flagTitle != "" {
		common := media.Common{TMDBID: flagTMDB, IMDBID: flagIMDB, Title: flagTitle, ReleaseYear: flagYear}
		if flagType == "movie" {
			return media.Movie{Common: common}, nil
		}
		return media.Show{
			Common:  common,
			Season:  media.Season{Number: flagSeason},
			Episode: media.Episode{Number: flagEpisode},
		}, nil
	}

	if cfg.TMDBAPIKey == "" {
		return nil, errors.New("no TMDB API key configured: set tmdb_api_key, REELSCOUT_TMDB_API_KEY or pass --title")
	}
	client := tmdb.New(cfg.TMDBAPIKey, e.direct)
	if flagType == "movie" {
		return client.Movie(ctx, flagTMDB)
	}
	return client.Show(ctx, flagTMDB, flagSeason, flagEpisode)
}

type resultView struct {
	*runner.RunResult

	// Routes maps stream ids to the route of each fetch level, starting at the locator.
	Routes map[string][]string `json:"routes,omitempty"`

	// Caption is the best caption for the preferred language, per stream id.
	Caption map[string]*media.Caption `json:"caption,omitempty"`
}

func printResult(res *runner.RunResult) error {
	lang := lo.CoalesceOrEmpty(flagLanguage, cfg.SubsLanguage)

	view := resultView{RunResult: res, Caption: map[string]*media.Caption{}}
	if flagRoutes {
		view.Routes = map[string][]string{}
	}
	for i := range res.Streams {
		s := &res.Streams[i]
		if flagRoutes {
			view.Routes[s.ID] = lo.Map(routing.Plan(s, routeLevels), func(r routing.Route, _ int) string { return r.String() })
		}
		if best := caption.BestMatch(s.Captions, lang); best != nil {
			view.Caption[s.ID] = best
		}
	}

	if !flagTable {
		return printJSON(view)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "run\t%s\n", res.ID)
	fmt.Fprintf(w, "media\t%v\n", res.Query)
	fmt.Fprintf(w, "source\t%s\n", lo.CoalesceOrEmpty(strings.Trim(res.SourceID+"/"+res.EmbedID, "/"), "-"))
	fmt.Fprintf(w, "attempts\t%s\n", strings.Join(lo.Map(res.Attempts, func(a runner.Attempt, _ int) string {
		return a.ID + ":" + string(a.Outcome)
	}), " "))
	for _, emb := range res.Embeds {
		fmt.Fprintf(w, "embed\t%s\t%s\n", emb.EmbedID, emb.URL)
	}
	for _, s := range res.Streams {
		fmt.Fprintf(w, "stream\t%s\t%s\t%s\n", s.ID, s.Kind, truncate(s.Locator(), 80))
		if c := view.Caption[s.ID]; c != nil {
			fmt.Fprintf(w, "caption\t%s\t%s\t%s\n", s.ID, c.Language, c.URL)
		}
		if r := view.Routes[s.ID]; r != nil {
			fmt.Fprintf(w, "routes\t%s\t%s\n", s.ID, strings.Join(r, " > "))
		}
	}
	return w.Flush()
}

// explainRunError adds the attempt list to a failed run's error.
func explainRunError(err error) error {
	var nsf *runner.NoSourceFoundError
	if errors.As(err, &nsf) && flagTable {
		w := tabwriter.NewWriter(os.Stderr, 0, 0, 2, ' ', 0)
		for _, a := range nsf.Attempts {
			fmt.Fprintf(w, "%s\t%s\t%v\n", a.ID, a.Outcome, a.Err)
		}
		w.Flush()
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
