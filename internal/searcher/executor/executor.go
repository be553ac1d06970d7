package executor

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/akalivaty/Artale-drop-bot/internal/document"
	"github.com/akalivaty/Artale-drop-bot/internal/indexer/index"
	"github.com/akalivaty/Artale-drop-bot/internal/searcher/alias"
	"github.com/akalivaty/Artale-drop-bot/internal/searcher/render"
	"github.com/akalivaty/Artale-drop-bot/pkg/config"
)

// Fixed replies for searches that do not produce a report.
const (
	MsgNoResults = "找不到任何掉落物名稱中同時含有輸入的所有關鍵字。"
	MsgNoMonster = "找不到名稱中含有輸入關鍵字的怪物。"
	MsgTooMany   = "結果太多，無法在單一訊息中顯示。請嘗試更精確的關鍵字。"
)

type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeNoResults Outcome = "no_results"
	OutcomeTooLarge  Outcome = "too_large"
)

// Report is the reply to one search. Hits counts matched items or monsters,
// including when the rendered text was replaced by MsgTooMany.
type Report struct {
	Text    string  `json:"text"`
	Outcome Outcome `json:"outcome"`
	Hits    int     `json:"hits"`
}

type Options struct {
	MaxChars       int
	SortPolicy     string
	SeparatorWidth int
}

// Resolver answers drop and monster searches. It holds no index state and is
// safe for concurrent use.
type Resolver struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) *Resolver {
	defaults := config.Default().Render
	if opts.MaxChars <= 0 {
		opts.MaxChars = defaults.MaxChars
	}
	if opts.SortPolicy == "" {
		opts.SortPolicy = defaults.SortPolicy
	}
	if opts.SeparatorWidth <= 0 {
		opts.SeparatorWidth = defaults.SeparatorWidth
	}
	return &Resolver{
		opts:   opts,
		logger: slog.Default().With("component", "query-executor"),
	}
}

func NewFromConfig(cfg config.RenderConfig) *Resolver {
	return New(Options{
		MaxChars:       cfg.MaxChars,
		SortPolicy:     cfg.SortPolicy,
		SeparatorWidth: cfg.SeparatorWidth,
	})
}

// match is one canonical item, or one monster, found by a search.
type match struct {
	name         string
	display      string
	counterparts []string
}

func (m match) title() string {
	if m.display == m.name {
		return m.display
	}
	return fmt.Sprintf("%s (%s)", m.display, m.name)
}

// SearchDrops finds the items whose names contain every whitespace-separated
// keyword of query and lists the monsters dropping each. Blank queries match
// every item.
func (r *Resolver) SearchDrops(query string, items *index.ItemIndex) Report {
	keywords := strings.Fields(query)

	found := make(map[string]struct{})
	var matches []match
	items.Range(func(name string, _ index.Entry) bool {
		if !containsAll(name, keywords) {
			return true
		}
		canonical, e, ok := alias.ResolveItem(name, items)
		if !ok {
			r.logger.Debug("matched item does not resolve", "item", name)
			return true
		}
		if _, dup := found[canonical]; dup {
			return true
		}
		found[canonical] = struct{}{}
		matches = append(matches, match{
			name:         canonical,
			display:      name,
			counterparts: e.Monsters,
		})
		return true
	})

	if len(matches) == 0 {
		return Report{Text: MsgNoResults, Outcome: OutcomeNoResults}
	}
	r.sortMatches(matches)

	header := fmt.Sprintf("===== 找到同時含有「%s」的掉落物結果 =====", strings.Join(keywords, "' 和 '"))
	return r.render(header, matches)
}

// SearchMonsterDrops finds the monsters whose names contain query as a
// literal substring and lists the raw items each drops.
func (r *Resolver) SearchMonsterDrops(query string, drops *document.DropTable) Report {
	var matches []match
	drops.Range(func(monster string, items []string) bool {
		if strings.Contains(monster, query) {
			matches = append(matches, match{
				name:         monster,
				display:      monster,
				counterparts: items,
			})
		}
		return true
	})

	if len(matches) == 0 {
		return Report{Text: MsgNoMonster, Outcome: OutcomeNoResults}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return render.Len(matches[i].name) < render.Len(matches[j].name)
	})

	header := fmt.Sprintf("===== 找到名稱含有「%s」的怪物掉落物 =====", query)
	return r.render(header, matches)
}

func (r *Resolver) sortMatches(matches []match) {
	switch r.opts.SortPolicy {
	case config.SortByLexical:
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].display < matches[j].display
		})
	default:
		sort.SliceStable(matches, func(i, j int) bool {
			return render.Len(matches[i].display) < render.Len(matches[j].display)
		})
	}
}

func (r *Resolver) render(header string, matches []match) Report {
	report := render.Report{
		Header:         header,
		SeparatorWidth: r.opts.SeparatorWidth,
		Sections:       make([]render.Section, 0, len(matches)),
	}
	for _, m := range matches {
		report.Sections = append(report.Sections, render.Section{
			Title:   m.title(),
			Entries: render.SortByLength(m.counterparts),
		})
	}
	text, ok := render.Fit(report.String(), r.opts.MaxChars)
	if !ok {
		return Report{Text: MsgTooMany, Outcome: OutcomeTooLarge, Hits: len(matches)}
	}
	return Report{Text: text, Outcome: OutcomeOK, Hits: len(matches)}
}

func containsAll(name string, keywords []string) bool {
	for _, k := range keywords {
		if !strings.Contains(name, k) {
			return false
		}
	}
	return true
}
