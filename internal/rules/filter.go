package rules

import (
	"context"
	"fmt"
	"log/slog"
	netUrl "net/url"
	"regexp"
	"strings"

	"github.com/IliaW/archive-spider/internal/model"
)

type RuleSource interface {
	RulesForDomain(ctx context.Context, domain string) ([]model.ScrapeRule, error)
}

// Filter holds the compiled deny rules of a crawl session. It is read-only after Load.
type Filter struct {
	deny map[string][]*regexp.Regexp
}

// Load compiles the rules of every domain once. A pattern that fails to compile is skipped.
func Load(ctx context.Context, source RuleSource, domains ...string) (*Filter, error) {
	f := &Filter{deny: make(map[string][]*regexp.Regexp, len(domains))}
	for _, domain := range domains {
		domain = strings.ToLower(domain)
		rules, err := source.RulesForDomain(ctx, domain)
		if err != nil {
			return nil, fmt.Errorf("load rules for %s: %w", domain, err)
		}
		for _, rule := range rules {
			f.add(domain, rule)
		}
		slog.Info("archive rules loaded.", slog.String("domain", domain),
			slog.Int("link_deny", len(f.deny[domain])))
	}

	return f, nil
}

func (f *Filter) add(domain string, rule model.ScrapeRule) {
	if rule.RuleType != model.LinkDeny {
		slog.Debug("unsupported rule type. skipped.", slog.Int64("id", rule.ID),
			slog.String("rule_type", string(rule.RuleType)))
		return
	}
	re, err := regexp.Compile(rule.RulePattern)
	if err != nil {
		slog.Error("invalid link_deny rule. skipped.", slog.Int64("id", rule.ID),
			slog.String("rule", rule.RulePattern), slog.String("err", err.Error()))
		return
	}
	f.deny[domain] = append(f.deny[domain], re)
}

// IsAllowed reports whether a page may be archived. A rule matches when its
// expression matches at the start of the URL. No rules means allowed.
func (f *Filter) IsAllowed(url string) bool {
	u, err := netUrl.Parse(url)
	if err != nil {
		return true
	}
	for _, re := range f.deny[strings.ToLower(u.Host)] {
		if loc := re.FindStringIndex(url); loc != nil && loc[0] == 0 {
			slog.Debug("rejecting page for archiving due to archive rules.", slog.String("url", url),
				slog.String("rule", re.String()))
			return false
		}
	}

	return true
}
