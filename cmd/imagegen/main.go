// Imagegen is the command line collaborator: it drives the same catalog and
// orchestrator as the server, in process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"imagegen/internal/catalog"
	"imagegen/internal/config"
	"imagegen/internal/log"
	"imagegen/internal/models"
	"imagegen/internal/provider"
	"imagegen/internal/storage/archive"
	"imagegen/internal/workflow"
	"imagegen/pkg/database/sqlite"
)

const usage = `usage: imagegen <command> [flags]

commands:
  generate    generate an image from a prompt
  import      register an existing image file
  list        list generations
  show        show one generation
  star        toggle the starred flag
  trash       move generations to trash
  restore     restore a generation from trash
  delete      permanently delete a generation and its files
  tag         add or remove tags on a generation
  tags        list all tags with usage counts
  collection  manage collections
  prompts     show recent prompts
  costs       show spend summary
  jobs        list or clean up jobs
  models      list available models
`

type app struct {
	catalog      *catalog.Catalog
	orchestrator *workflow.Orchestrator
	store        *archive.Store
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if os.Args[1] == "models" {
		// The registry is static; no database needed.
		runModels()
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fatal(err)
	}
	logger := log.New(log.Config{Level: slog.LevelWarn, JSON: cfg.LogJSON})

	store := archive.New(cfg.ArchiveRoot, logger)
	if err := store.EnsureDirs(); err != nil {
		fatal(err)
	}
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		fatal(err)
	}
	defer db.Close()
	if err := sqlite.Migrate(db); err != nil {
		fatal(err)
	}

	cat := catalog.New(db, logger)
	dispatcher := provider.NewDispatcher(logger)
	if cfg.GeminiAPIKey != "" {
		dispatcher.Register(models.ProviderGemini, provider.NewGemini(cfg.GeminiAPIKey))
	}
	if cfg.FalAPIKey != "" {
		dispatcher.Register(models.ProviderFal, provider.NewFal(cfg.FalAPIKey))
	}
	if cfg.OpenAIAPIKey != "" {
		dispatcher.Register(models.ProviderOpenAI, provider.NewOpenAI(cfg.OpenAIAPIKey))
	}
	if cfg.SelfHostedURL != "" {
		dispatcher.Register(models.ProviderSelfHosted, provider.NewSelfHosted(cfg.SelfHostedURL))
	}

	a := &app{
		catalog:      cat,
		orchestrator: workflow.New(cat, store, dispatcher, logger),
		store:        store,
	}

	ctx := context.Background()
	args := os.Args[2:]

	switch os.Args[1] {
	case "generate":
		err = a.runGenerate(ctx, args)
	case "import":
		err = a.runImport(ctx, args)
	case "list":
		err = a.runList(ctx, args)
	case "show":
		err = a.runShow(ctx, args)
	case "star":
		err = a.runStar(ctx, args)
	case "trash":
		err = a.runTrash(ctx, args)
	case "restore":
		err = a.runRestore(ctx, args)
	case "delete":
		err = a.runDelete(ctx, args)
	case "tag":
		err = a.runTag(ctx, args)
	case "tags":
		err = a.runTags(ctx)
	case "collection":
		err = a.runCollection(ctx, args)
	case "prompts":
		err = a.runPrompts(ctx, args)
	case "costs":
		err = a.runCosts(ctx, args)
	case "jobs":
		err = a.runJobs(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "imagegen:", err)
	os.Exit(1)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (a *app) runGenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	model := fs.String("model", "gemini-flash", "model id (see 'imagegen models')")
	tags := fs.String("tags", "", "comma-separated tags")
	refs := fs.String("ref", "", "comma-separated reference image paths")
	negative := fs.String("negative", "", "negative prompt")
	aspect := fs.String("aspect", "", "aspect ratio (square, portrait, landscape, wide, tall)")
	copyTo := fs.String("copy-to", "", "also copy the output to this path")
	parent := fs.Int64("parent", 0, "parent generation id for lineage")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("generate requires a prompt")
	}
	params := models.GenerateParams{
		Prompt:         strings.Join(fs.Args(), " "),
		Model:          *model,
		Tags:           splitCSV(*tags),
		ReferencePaths: splitCSV(*refs),
		NegativePrompt: *negative,
		CopyTo:         *copyTo,
	}
	if *parent != 0 {
		params.ParentID = parent
	}
	if *aspect != "" {
		w, h, ok := models.ResolveAspectRatio(*aspect)
		if !ok {
			return fmt.Errorf("unknown aspect ratio %q", *aspect)
		}
		params.Width, params.Height = &w, &h
	}

	gen, err := a.orchestrator.Generate(ctx, params, models.JobSourceCLI)
	if err != nil {
		return err
	}
	fmt.Printf("generated #%d  %s\n", gen.ID, gen.ImagePath)
	if gen.CostEstimateUSD != nil {
		fmt.Printf("cost: $%.4f\n", *gen.CostEstimateUSD)
	}
	return nil
}

func (a *app) runImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	prompt := fs.String("prompt", "", "description for the imported image")
	tags := fs.String("tags", "", "comma-separated tags")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("import requires exactly one file path")
	}
	gen, err := a.orchestrator.Import(ctx, fs.Arg(0), *prompt, splitCSV(*tags))
	if err != nil {
		return err
	}
	fmt.Printf("imported #%d  %s\n", gen.ID, gen.ImagePath)
	return nil
}

func (a *app) runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int64("limit", 20, "max rows")
	tags := fs.String("tags", "", "require all of these tags (comma-separated)")
	exclude := fs.String("exclude-tags", "", "exclude these tags (comma-separated)")
	model := fs.String("model", "", "filter by model")
	starred := fs.Bool("starred", false, "starred only")
	search := fs.String("search", "", "substring match on prompt or title")
	since := fs.String("since", "", "date floor: today, 7d, 2w, YYYY-MM-DD")
	trashed := fs.Bool("trashed", false, "show the trash instead")
	uncategorized := fs.Bool("uncategorized", false, "untagged only")
	fs.Parse(args)

	sinceDate, err := models.ParseSince(*since)
	if err != nil {
		return err
	}
	generations, err := a.catalog.ListGenerations(ctx, models.ListFilter{
		Limit:         limit,
		Tags:          splitCSV(*tags),
		ExcludeTags:   splitCSV(*exclude),
		Model:         *model,
		StarredOnly:   *starred,
		Search:        *search,
		Since:         sinceDate,
		ShowTrashed:   *trashed,
		Uncategorized: *uncategorized,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWHEN\tMODEL\tSTAR\tTAGS\tPROMPT")
	for _, g := range generations {
		star := ""
		if g.Starred {
			star = "*"
		}
		prompt := g.Prompt
		if len(prompt) > 60 {
			prompt = prompt[:57] + "..."
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			g.ID, g.Timestamp, g.Model, star, strings.Join(g.Tags, ","), prompt)
	}
	return w.Flush()
}

func (a *app) runShow(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("show requires an id")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	g, err := a.catalog.GetGeneration(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("id:        %d\n", g.ID)
	fmt.Printf("prompt:    %s\n", g.Prompt)
	fmt.Printf("model:     %s (%s)\n", g.Model, g.Provider)
	fmt.Printf("when:      %s\n", g.Timestamp)
	fmt.Printf("image:     %s\n", g.ImagePath)
	if g.Title != nil {
		fmt.Printf("title:     %s\n", *g.Title)
	}
	if g.Width != nil && g.Height != nil {
		fmt.Printf("size:      %dx%d\n", *g.Width, *g.Height)
	}
	if g.CostEstimateUSD != nil {
		fmt.Printf("cost:      $%.4f\n", *g.CostEstimateUSD)
	}
	if g.Seed != nil {
		fmt.Printf("seed:      %s\n", *g.Seed)
	}
	if len(g.Tags) > 0 {
		fmt.Printf("tags:      %s\n", strings.Join(g.Tags, ", "))
	}
	for _, ref := range g.References {
		fmt.Printf("reference: %s\n", ref.Path)
	}
	if g.TrashedAt != nil {
		fmt.Printf("trashed:   %s\n", *g.TrashedAt)
	}
	return nil
}

func (a *app) runStar(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("star requires an id")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	starred, err := a.catalog.ToggleStarred(ctx, id)
	if err != nil {
		return err
	}
	if starred {
		fmt.Printf("starred #%d\n", id)
	} else {
		fmt.Printf("unstarred #%d\n", id)
	}
	return nil
}

func (a *app) runTrash(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("trash requires at least one id")
	}
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	n, err := a.catalog.TrashGenerations(ctx, ids)
	if err != nil {
		return err
	}
	fmt.Printf("trashed %d generation(s)\n", n)
	return nil
}

func (a *app) runRestore(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("restore requires an id")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	changed, err := a.catalog.RestoreGeneration(ctx, id)
	if err != nil {
		return err
	}
	if !changed {
		fmt.Printf("#%d was not in the trash\n", id)
		return nil
	}
	fmt.Printf("restored #%d\n", id)
	return nil
}

func (a *app) runDelete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("delete requires an id")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := a.orchestrator.Purge(ctx, id); err != nil {
		return err
	}
	fmt.Printf("deleted #%d\n", id)
	return nil
}

func (a *app) runTag(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tag", flag.ExitOnError)
	remove := fs.String("rm", "", "tag to remove instead of adding")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("tag requires an id")
	}
	id, err := parseID(fs.Arg(0))
	if err != nil {
		return err
	}

	if *remove != "" {
		if err := a.catalog.RemoveTag(ctx, id, *remove); err != nil {
			return err
		}
		fmt.Printf("removed %q from #%d\n", *remove, id)
		return nil
	}

	tags := fs.Args()[1:]
	if len(tags) == 0 {
		return fmt.Errorf("tag requires tag names to add, or -rm")
	}
	if err := a.catalog.AddTags(ctx, id, tags); err != nil {
		return err
	}
	fmt.Printf("tagged #%d with %s\n", id, strings.Join(tags, ", "))
	return nil
}

func (a *app) runTags(ctx context.Context) error {
	tags, err := a.catalog.ListTags(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TAG\tCOUNT")
	for _, tc := range tags {
		fmt.Fprintf(w, "%s\t%d\n", tc.Name, tc.Count)
	}
	return w.Flush()
}

func (a *app) runCollection(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("collection requires a subcommand: create, list, add, rm, delete")
	}

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("collection create", flag.ExitOnError)
		desc := fs.String("desc", "", "description")
		fs.Parse(args[1:])
		if fs.NArg() != 1 {
			return fmt.Errorf("collection create requires a name")
		}
		var d *string
		if *desc != "" {
			d = desc
		}
		col, err := a.catalog.CreateCollection(ctx, fs.Arg(0), d)
		if err != nil {
			return err
		}
		fmt.Printf("created collection #%d %q\n", col.ID, col.Name)
		return nil

	case "list":
		cols, err := a.catalog.ListCollections(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCOUNT\tDESCRIPTION")
		for _, col := range cols {
			desc := ""
			if col.Description != nil {
				desc = *col.Description
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", col.ID, col.Name, col.Count, desc)
		}
		return w.Flush()

	case "add", "rm":
		if len(args) != 3 {
			return fmt.Errorf("collection %s requires a collection id and a generation id", args[0])
		}
		colID, err := parseID(args[1])
		if err != nil {
			return err
		}
		genID, err := parseID(args[2])
		if err != nil {
			return err
		}
		if args[0] == "add" {
			if err := a.catalog.AddToCollection(ctx, genID, colID); err != nil {
				return err
			}
			fmt.Printf("added #%d to collection #%d\n", genID, colID)
			return nil
		}
		if err := a.catalog.RemoveFromCollection(ctx, genID, colID); err != nil {
			return err
		}
		fmt.Printf("removed #%d from collection #%d\n", genID, colID)
		return nil

	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("collection delete requires a collection id")
		}
		colID, err := parseID(args[1])
		if err != nil {
			return err
		}
		if err := a.catalog.DeleteCollection(ctx, colID); err != nil {
			return err
		}
		fmt.Printf("deleted collection #%d\n", colID)
		return nil
	}
	return fmt.Errorf("unknown collection subcommand %q", args[0])
}

func (a *app) runPrompts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("prompts", flag.ExitOnError)
	limit := fs.Int64("limit", 20, "max rows")
	fs.Parse(args)

	entries, err := a.catalog.PromptHistory(ctx, *limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("#%d  %s  %s\n", e.ID, e.Timestamp, e.Prompt)
	}
	return nil
}

func (a *app) runCosts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("costs", flag.ExitOnError)
	since := fs.String("since", "", "date floor: today, 7d, 2w, YYYY-MM-DD")
	fs.Parse(args)

	sinceDate, err := models.ParseSince(*since)
	if err != nil {
		return err
	}
	summary, err := a.catalog.GetCostSummary(ctx, sinceDate)
	if err != nil {
		return err
	}
	fmt.Printf("total: $%.4f across %d generations\n\n", summary.TotalUSD, summary.Count)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tUSD")
	for _, mc := range summary.ByModel {
		fmt.Fprintf(w, "%s\t$%.4f\n", mc.Model, mc.USD)
	}
	fmt.Fprintln(w, "\nDATE\tUSD")
	for _, dc := range summary.ByDay {
		fmt.Fprintf(w, "%s\t$%.4f\n", dc.Date, dc.USD)
	}
	return w.Flush()
}

func (a *app) runJobs(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("jobs", flag.ExitOnError)
	failed := fs.Bool("failed", false, "show recent failures instead of active jobs")
	cleanup := fs.Bool("cleanup", false, "delete finished jobs")
	fs.Parse(args)

	if *cleanup {
		n, err := a.catalog.CleanupOldJobs(ctx, 0)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d finished job(s)\n", n)
		return nil
	}

	var (
		jobs []*models.Job
		err  error
	)
	if *failed {
		jobs, err = a.catalog.ListRecentFailedJobs(ctx)
	} else {
		jobs, err = a.catalog.ListActiveJobs(ctx)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tMODEL\tCREATED\tPROMPT\tERROR")
	for _, j := range jobs {
		errMsg := ""
		if j.Error != nil {
			errMsg = *j.Error
		}
		prompt := j.Prompt
		if len(prompt) > 40 {
			prompt = prompt[:37] + "..."
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			j.ID, j.Status, j.Model, j.CreatedAt, prompt, errMsg)
	}
	return w.Flush()
}

func runModels() {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROVIDER\tNAME\tCOST\tMAX REFS")
	for _, m := range models.Models() {
		cost := "free"
		if m.CostPerImage > 0 {
			cost = fmt.Sprintf("$%.3f", m.CostPerImage)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", m.ID, m.Provider, m.DisplayName, cost, m.MaxRefs)
	}
	w.Flush()
}
