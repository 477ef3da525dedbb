package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skelly-dev/distill/internal/config"
	"github.com/skelly-dev/distill/internal/cost"
	"github.com/skelly-dev/distill/internal/errs"
	"github.com/skelly-dev/distill/internal/fileutil"
	"github.com/skelly-dev/distill/internal/governor"
	"github.com/skelly-dev/distill/internal/perception"
	"github.com/skelly-dev/distill/internal/record"
	"github.com/skelly-dev/distill/internal/slogutil"
)

// ReasonBudgetExceeded marks entries downgraded during assembly.
const ReasonBudgetExceeded = "Budget Exceeded"

var stackManifests = []struct {
	name  string
	stack string
}{
	{"go.mod", "Go"},
	{"package.json", "Node.js"},
	{"pyproject.toml", "Python"},
	{"requirements.txt", "Python"},
	{"setup.py", "Python"},
	{"Cargo.toml", "Rust"},
	{"Gemfile", "Ruby"},
	{"pom.xml", "Java"},
	{"build.gradle", "Java"},
	{"composer.json", "PHP"},
	{"Dockerfile", "Docker"},
	{"Makefile", "Make"},
}

// Input is everything assembly needs from the earlier stages.
type Input struct {
	Project  string
	Strategy config.Strategy
	Plan     *governor.Plan
	Records  []record.FileRecord
	// Seeds maps a seed path to its reasons.
	Seeds map[string][]string
	// Active maps traced paths to active symbols; a nil set shows the whole file.
	Active        map[string]map[string]bool
	FocusKeywords []string
	Annotate      bool
	Started       time.Time
}

// Document is the assembled output.
type Document struct {
	Text     string              `json:"-"`
	Tokens   int                 `json:"tokens"`
	Budget   int                 `json:"budget"`
	Included int                 `json:"included"`
	Omitted  int                 `json:"omitted"`
	PerTier  map[record.Tier]int `json:"per_tier"`
	Debt     Debt                `json:"debt"`
	Checksum string              `json:"checksum"`
	RunID    string              `json:"run_id"`
	Duration time.Duration       `json:"duration"`
	Failures []error             `json:"-"`
}

// Assembler renders a plan into a document under the token ledger.
type Assembler struct {
	Renderer *Renderer
	Counter  cost.Counter
	ReadFile func(rel string) ([]byte, error)
	Logger   *slog.Logger
	Now      func() time.Time
	NewRunID func() string
}

// NewAssembler reads file content from root.
func NewAssembler(root string, counter cost.Counter, logger *slog.Logger) *Assembler {
	if counter == nil {
		counter = cost.HeuristicCounter{}
	}
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Assembler{
		Renderer: NewRenderer(),
		Counter:  counter,
		ReadFile: func(rel string) ([]byte, error) {
			return perception.ReadContent(root, rel)
		},
		Logger:   logger,
		Now:      time.Now,
		NewRunID: uuid.NewString,
	}
}

type ledger struct {
	budget int
	spent  int
}

func (l *ledger) affords(tokens int) bool {
	return l.spent+tokens <= l.budget
}

func (l *ledger) charge(tokens int) {
	l.spent += tokens
}

type loaded struct {
	content []byte
	err     error
}

// Assemble walks the plan in order, charging each entry's exact rendered cost.
// An entry that does not fit is replaced by an omission stub, or dropped when the
// stub does not fit either.
func (a *Assembler) Assemble(ctx context.Context, in Input) (*Document, error) {
	if in.Plan == nil {
		return nil, fmt.Errorf("assemble: no plan")
	}
	started := in.Started
	if started.IsZero() {
		started = a.Now()
	}

	budget := in.Plan.RawBudget
	if in.Plan.Unlimited {
		budget = math.MaxInt
	}
	l := &ledger{budget: budget}
	doc := &Document{Budget: in.Plan.RawBudget, PerTier: make(map[record.Tier]int), RunID: a.NewRunID()}

	records := make(map[string]record.FileRecord, len(in.Records))
	for _, rec := range in.Records {
		records[rec.Path] = rec
	}

	contents := make(map[string]loaded)
	for _, p := range in.Plan.Order {
		rec, ok := records[p]
		if !ok || in.Plan.Tier(p) <= record.TierPathOnly || !hasContent(rec) {
			continue
		}
		content, err := a.ReadFile(p)
		contents[p] = loaded{content: content, err: err}
		if err == nil {
			doc.Debt = doc.Debt.Add(CountDebt(content))
		}
	}

	pieces := make([]string, 0, len(in.Plan.Order)+2)
	preamble := a.header(in, records, doc.Debt) + "\n" + legend(in.Plan)
	l.charge(a.Counter.Count(preamble))
	pieces = append(pieces, preamble)

	for _, p := range in.Plan.Order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry := in.Plan.Entries[p]
		if entry.Tier == record.TierExcluded {
			continue
		}
		rec, ok := records[p]
		if !ok {
			continue
		}

		text, err := a.renderEntry(rec, entry, contents[p], in)
		if err != nil {
			failure := &errs.RenderFailure{Path: p, Err: err}
			a.Logger.Warn("render failed", "path", p, "error", err)
			doc.Failures = append(doc.Failures, failure)
			marker := fmt.Sprintf("# [RenderFailure] %s: %v", p, err)
			if tokens := a.Counter.Count(marker); l.affords(tokens) {
				l.charge(tokens)
				pieces = append(pieces, marker)
			}
			doc.Omitted++
			continue
		}

		if tokens := a.Counter.Count(text); l.affords(tokens) {
			l.charge(tokens)
			pieces = append(pieces, text)
			doc.Included++
			doc.PerTier[entry.Tier]++
			continue
		}

		doc.Omitted++
		stub := a.Renderer.Formatter.Omitted(p, ReasonBudgetExceeded)
		if tokens := a.Counter.Count(stub); l.affords(tokens) {
			l.charge(tokens)
			pieces = append(pieces, stub)
			doc.PerTier[record.TierPathOnly]++
		}
	}

	body := joinPieces(pieces)
	sum := sha256.Sum256([]byte(body))
	doc.Checksum = hex.EncodeToString(sum[:])
	doc.Tokens = l.spent
	doc.Duration = a.Now().Sub(started)

	footer := fmt.Sprintf("# distill: files=%d tokens=%d duration=%s checksum=sha256:%s run=%s",
		doc.Included, doc.Tokens, doc.Duration.Round(time.Millisecond), doc.Checksum[:16], doc.RunID)
	doc.Text = body + footer + "\n"

	a.Logger.Info("assembly complete",
		"included", doc.Included,
		"omitted", doc.Omitted,
		"tokens", doc.Tokens,
		"failures", len(doc.Failures),
	)
	return doc, nil
}

func (a *Assembler) renderEntry(rec record.FileRecord, entry governor.Entry, content loaded, in Input) (string, error) {
	if content.err != nil {
		return "", fmt.Errorf("read: %w", content.err)
	}
	opts := RenderOptions{
		Annotate:      in.Annotate,
		FocusKeywords: in.FocusKeywords,
		Reason:        entry.Reason,
	}
	if active, ok := in.Active[rec.Path]; ok {
		if active == nil {
			opts.ShowAll = true
		} else {
			opts.Active = active
		}
	}
	return a.Renderer.Render(rec, content.content, entry.Tier, opts)
}

func hasContent(rec record.FileRecord) bool {
	return rec.Category != record.CategoryBinary && rec.Category != record.CategorySymlink
}

func (a *Assembler) header(in Input, records map[string]record.FileRecord, debt Debt) string {
	project := in.Project
	if project == "" {
		project = "project"
	}
	budget := fmt.Sprintf("%d", in.Plan.RawBudget)
	if in.Plan.Unlimited {
		budget = "unlimited"
	}
	strategy := in.Strategy
	if strategy == "" {
		strategy = config.StrategyBalanced
	}

	lines := []string{
		"# Distilled context: " + project,
		fmt.Sprintf("# Files: %d | Strategy: %s | Budget: %s", len(in.Plan.Order), strategy, budget),
	}
	if stacks := detectStacks(records); len(stacks) > 0 {
		lines = append(lines, "# Stacks: "+strings.Join(stacks, ", "))
	}
	if manifests := manifestPaths(records); len(manifests) > 0 {
		lines = append(lines, "# Manifests: "+strings.Join(manifests, ", "))
	}
	if debt.Total() > 0 {
		lines = append(lines, "# Debt: "+debt.String())
	}
	for _, seed := range fileutil.MapKeysSorted(in.Seeds) {
		lines = append(lines, fmt.Sprintf("# Focus: %s (%s)", seed, strings.Join(in.Seeds[seed], "; ")))
	}
	return strings.Join(lines, "\n")
}

func detectStacks(records map[string]record.FileRecord) []string {
	bases := make(map[string]bool)
	for p := range records {
		bases[p[strings.LastIndex(p, "/")+1:]] = true
	}
	seen := make(map[string]bool)
	stacks := make([]string, 0)
	for _, m := range stackManifests {
		if bases[m.name] && !seen[m.stack] {
			seen[m.stack] = true
			stacks = append(stacks, m.stack)
		}
	}
	return stacks
}

func manifestPaths(records map[string]record.FileRecord) []string {
	out := make([]string, 0)
	for p, rec := range records {
		if record.IsManifestName(rec.Base()) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func legend(plan *governor.Plan) string {
	lines := []string{"# Map:"}
	for _, p := range plan.Order {
		entry := plan.Entries[p]
		if entry.Tier == record.TierExcluded {
			continue
		}
		lines = append(lines, fmt.Sprintf("# [%s] %s (~%s)", entry.Tier, p, costBucket(entry.Cost)))
	}
	return strings.Join(lines, "\n")
}

func costBucket(tokens int) string {
	switch {
	case tokens < 100:
		return "<100"
	case tokens < 1000:
		return "<1k"
	case tokens < 5000:
		return "<5k"
	default:
		return "5k+"
	}
}

// joinPieces separates multi-line blocks with a blank line.
func joinPieces(pieces []string) string {
	var b strings.Builder
	for i, piece := range pieces {
		if i > 0 && (strings.Contains(piece, "\n") || strings.Contains(pieces[i-1], "\n")) {
			b.WriteString("\n")
		}
		b.WriteString(piece)
		b.WriteString("\n")
	}
	return b.String()
}
