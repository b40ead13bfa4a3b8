package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/IliaW/archive-spider/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRules map[string][]model.ScrapeRule

func (s staticRules) RulesForDomain(_ context.Context, domain string) ([]model.ScrapeRule, error) {
	return s[domain], nil
}

type failingRules struct{}

func (failingRules) RulesForDomain(context.Context, string) ([]model.ScrapeRule, error) {
	return nil, errors.New("disk I/O error")
}

func deny(pattern string) model.ScrapeRule {
	return model.ScrapeRule{RuleType: model.LinkDeny, RulePattern: pattern, Domain: "example.com"}
}

func TestIsAllowed_NoRulesFailsOpen(t *testing.T) {
	f, err := Load(context.Background(), staticRules{}, "example.com")
	require.NoError(t, err)

	assert.True(t, f.IsAllowed("https://example.com/anything"))
	assert.True(t, f.IsAllowed("https://unknown.org/"))
}

func TestIsAllowed_AnyRuleRejects(t *testing.T) {
	f, err := Load(context.Background(), staticRules{
		"example.com": {deny(`.*index\.php.*`), deny(`.*wiki/Special.*`)},
	}, "example.com")
	require.NoError(t, err)

	assert.False(t, f.IsAllowed("https://example.com/mw/index.php?title=Main"))
	assert.False(t, f.IsAllowed("https://example.com/wiki/Special:Random"))
	assert.True(t, f.IsAllowed("https://example.com/wiki/Main_Page"))
}

func TestIsAllowed_MatchIsAnchoredAtStart(t *testing.T) {
	f, err := Load(context.Background(), staticRules{
		"example.com": {deny(`https://example\.com/private`)},
	}, "example.com")
	require.NoError(t, err)

	assert.False(t, f.IsAllowed("https://example.com/private/page"))
	assert.True(t, f.IsAllowed("https://example.com/public?next=https://example.com/private"))
}

func TestIsAllowed_RulesAreScopedToDomain(t *testing.T) {
	f, err := Load(context.Background(), staticRules{
		"example.com": {deny(`.*`)},
	}, "example.com")
	require.NoError(t, err)

	assert.False(t, f.IsAllowed("https://example.com/"))
	assert.True(t, f.IsAllowed("https://other.org/"))
}

func TestLoad_SkipsInvalidAndUnknownRules(t *testing.T) {
	f, err := Load(context.Background(), staticRules{
		"example.com": {
			deny(`([unclosed`),
			{RuleType: "link_allow", RulePattern: `.*`, Domain: "example.com"},
			deny(`.*/tmp/.*`),
		},
	}, "example.com")
	require.NoError(t, err)

	assert.True(t, f.IsAllowed("https://example.com/ok"))
	assert.False(t, f.IsAllowed("https://example.com/tmp/x"))
}

func TestLoad_SourceError(t *testing.T) {
	_, err := Load(context.Background(), failingRules{}, "example.com")
	assert.Error(t, err)
}
