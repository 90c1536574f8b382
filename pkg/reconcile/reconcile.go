// Package reconcile converges a merchant's storefront group with its source site: it
// creates listings for new in-stock items and removes listings that vanished from the
// source or went out of stock.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kashisync/kashisync/pkg/catalog"
	"github.com/kashisync/kashisync/pkg/crawler"
	"github.com/kashisync/kashisync/pkg/identity"
	"github.com/kashisync/kashisync/pkg/pricing"
	"github.com/kashisync/kashisync/pkg/translate"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Policy is what cleanup does to a managed listing that should no longer be on sale.
type Policy string

const (
	PolicyDelete Policy = "delete"
	PolicyDraft  Policy = "draft"
)

const (
	DefaultMaxConsecutiveTranslationFailures = 3
	DefaultEmptySourceGuard                  = 10
)

// Config is the per-merchant parameterization of the engine.
type Config struct {
	Merchant    string
	GroupName   string
	KeyPrefix   string
	MinPrice    int
	Rates       pricing.Rates
	TitlePrefix string
	Vendor      string
	Tags        []string

	MaxConsecutiveTranslationFailures int
	DeletionPolicy                    Policy
	// RecheckStock fetches the detail page of already-listed group items to catch items
	// that went out of stock.
	RecheckStock bool
	// EmptySourceGuard aborts before cleanup when the source lists nothing but the group
	// holds more than this many listings.
	EmptySourceGuard int
}

func (c Config) withDefaults() Config {
	if c.MaxConsecutiveTranslationFailures <= 0 {
		c.MaxConsecutiveTranslationFailures = DefaultMaxConsecutiveTranslationFailures
	}
	if c.DeletionPolicy == "" {
		c.DeletionPolicy = PolicyDelete
	}
	if c.EmptySourceGuard <= 0 {
		c.EmptySourceGuard = DefaultEmptySourceGuard
	}
	c.Rates = c.Rates.WithDefaults()
	return c
}

// Action is a catalog write recorded for operators.
type Action string

const (
	ActionCreated     Action = "created"
	ActionDeleted     Action = "deleted"
	ActionDrafted     Action = "drafted"
	ActionReactivated Action = "reactivated"
)

// Change is one catalog write performed by a run.
type Change struct {
	RunID    string
	Merchant string
	Key      string
	TargetID string
	Title    string
	Action   Action
	At       time.Time
}

// Options holds everything Run needs for a single merchant.
type Options struct {
	Config     Config
	Crawler    crawler.Crawler
	Translator translate.Translator
	Store      catalog.Store
	Log        Logger // optional; nil = no logging

	// OnProgress receives a copy of the summary after every item and phase change.
	OnProgress func(Summary)
	// OnChange is called for every successful catalog write.
	OnChange func(Change)
}

// Engine runs reconciliations for one merchant. It holds no state between runs.
type Engine struct {
	cfg        Config
	crawler    crawler.Crawler
	translator translate.Translator
	store      catalog.Store
	normalizer identity.Normalizer
	log        Logger
	onProgress func(Summary)
	onChange   func(Change)
}

// New validates opts and builds an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Crawler == nil || opts.Translator == nil || opts.Store == nil {
		return nil, errors.New("reconcile: crawler, translator and store are required")
	}
	cfg := opts.Config.withDefaults()
	if strings.TrimSpace(cfg.GroupName) == "" {
		return nil, errors.New("reconcile: group name is required")
	}
	switch cfg.DeletionPolicy {
	case PolicyDelete, PolicyDraft:
	default:
		return nil, fmt.Errorf("reconcile: unknown deletion policy %q", cfg.DeletionPolicy)
	}
	log := opts.Log
	if log == nil {
		log = nopLogger{}
	}
	return &Engine{
		cfg:        cfg,
		crawler:    opts.Crawler,
		translator: opts.Translator,
		store:      opts.Store,
		normalizer: identity.Normalizer{Prefix: cfg.KeyPrefix},
		log:        log,
		onProgress: opts.OnProgress,
		onChange:   opts.OnChange,
	}, nil
}

// BelowPriceFloor reports whether a source cost is too low to list.
func BelowPriceFloor(price, minPrice int) bool { return price < minPrice }

// IsOutOfStock reports whether an item must not be listed for stock reasons.
func IsOutOfStock(item *crawler.SourceItem) bool { return !item.InStock }

// KeySet is a set of normalized keys.
type KeySet map[string]struct{}

func (s KeySet) Add(k string) {
	if k != "" {
		s[k] = struct{}{}
	}
}

func (s KeySet) Has(k string) bool {
	_, ok := s[k]
	return ok
}

// DeletionSet returns (group − source) ∪ (group ∩ outOfStock), sorted.
func DeletionSet(group, source, outOfStock KeySet) []string {
	out := make([]string, 0)
	for k := range group {
		if !source.Has(k) || outOfStock.Has(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// run is the state of one reconciliation.
type run struct {
	summary        *Summary
	groupID        string
	group          *catalog.Snapshot
	existingKeys   KeySet
	groupKeys      KeySet
	sourceKeys     KeySet
	outOfStockKeys KeySet
	consecutive    int
}

// Run performs one full reconciliation and returns its final summary. It never returns
// an error: failures are recorded in the summary.
func (e *Engine) Run(ctx context.Context, runID string) Summary {
	r := &run{
		summary:        NewSummary(runID, e.cfg.Merchant),
		existingKeys:   KeySet{},
		groupKeys:      KeySet{},
		sourceKeys:     KeySet{},
		outOfStockKeys: KeySet{},
	}
	e.publish(r)

	candidates, ok := e.prepare(ctx, r)
	if !ok {
		e.publish(r)
		return r.summary.Snapshot()
	}

	e.log.Infof("[%s] scanning %d candidates (group %q has %d listings)", e.cfg.Merchant, len(candidates), e.cfg.GroupName, r.group.Len())
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			r.summary.Stop("canceled: " + err.Error())
			break
		}
		e.processCandidate(ctx, r, c)
		e.publish(r)
		if r.summary.Stopped {
			break
		}
	}
	if r.summary.Stopped {
		e.log.Warnf("[%s] run stopped: %s", e.cfg.Merchant, r.summary.StopReason)
		e.publish(r)
		return r.summary.Snapshot()
	}

	r.summary.Phase = PhaseCleaning
	e.publish(r)
	e.cleanup(ctx, r)

	r.summary.finish()
	e.log.Infof("[%s] %s", e.cfg.Merchant, r.summary.Status)
	e.publish(r)
	return r.summary.Snapshot()
}

// prepare reads both snapshots and the candidate list. It returns false when the run
// had to stop.
func (e *Engine) prepare(ctx context.Context, r *run) ([]crawler.Candidate, bool) {
	groupID, err := e.store.EnsureGroup(ctx, e.cfg.GroupName)
	if err != nil {
		r.summary.errorf("ensure group %q: %v", e.cfg.GroupName, err)
		r.summary.Stop("catalog unavailable")
		return nil, false
	}
	r.groupID = groupID

	all, err := catalog.ReadAll(ctx, e.store, e.normalizer.FromSKU)
	if err != nil {
		r.summary.errorf("%v", err)
		r.summary.Stop("catalog unavailable")
		return nil, false
	}
	group, err := catalog.ReadGroup(ctx, e.store, groupID, e.normalizer.FromSKU)
	if err != nil {
		r.summary.errorf("%v", err)
		r.summary.Stop("catalog unavailable")
		return nil, false
	}
	r.group = group
	if n := group.Duplicates(); n > 0 {
		e.log.Warnf("[%s] group %q has %d listings sharing a key with another listing", e.cfg.Merchant, e.cfg.GroupName, n)
	}
	for _, k := range all.Keys() {
		r.existingKeys.Add(k)
	}
	for _, k := range group.Keys() {
		r.groupKeys.Add(k)
		r.existingKeys.Add(k)
	}

	candidates, err := e.crawler.ListCandidates(ctx)
	if err != nil {
		r.summary.errorf("list candidates: %v", err)
		r.summary.Stop("source unavailable")
		return nil, false
	}

	// Safety check: an empty source with a populated group almost always means the
	// crawler broke, not that the shop sold out of everything.
	if len(candidates) == 0 && group.Len() > e.cfg.EmptySourceGuard {
		r.summary.errorf("source returned 0 candidates but group %q holds %d listings", e.cfg.GroupName, group.Len())
		r.summary.Stop("empty source")
		return nil, false
	}
	return candidates, true
}

func (e *Engine) processCandidate(ctx context.Context, r *run, c crawler.Candidate) {
	s := r.summary
	s.Seen++

	key := e.normalizer.Normalize(c.ID)
	r.sourceKeys.Add(key)

	if key != "" && r.existingKeys.Has(key) {
		if r.groupKeys.Has(key) && e.cfg.RecheckStock {
			e.recheck(ctx, r, key, c)
		}
		s.skip(SkipAlreadyExists)
		return
	}

	item, err := e.crawler.FetchDetail(ctx, c.URL)
	if err != nil {
		s.errorf("fetch %s: %v", c.URL, err)
		s.skip(SkipMalformed)
		return
	}
	if item == nil {
		e.log.Debugf("[%s] %s is not a product page", e.cfg.Merchant, c.URL)
		s.skip(SkipMalformed)
		return
	}

	if BelowPriceFloor(item.Price, e.cfg.MinPrice) {
		s.skip(SkipBelowPriceFloor)
		return
	}
	if IsOutOfStock(item) {
		r.outOfStockKeys.Add(key)
		s.skip(SkipOutOfStock)
		return
	}
	price := e.cfg.Rates.SellPrice(item.Price, item.WeightKg)
	if price <= 0 {
		s.skip(SkipBelowPriceFloor)
		return
	}

	tr, err := e.translator.Translate(ctx, item.Title, item.Description)
	if err != nil {
		r.consecutive++
		s.TranslationFailures++
		s.skip(SkipTranslationFailed)
		s.errorf("translate %s: %v", c.URL, err)
		if r.consecutive >= e.cfg.MaxConsecutiveTranslationFailures {
			s.Stop(fmt.Sprintf("%d consecutive translation failures", r.consecutive))
		}
		return
	}

	listing := catalog.Listing{
		SKU:            key,
		GroupID:        r.groupID,
		Title:          e.cfg.TitlePrefix + tr.Title,
		Description:    tr.Description,
		SEOTitle:       tr.SEOTitle,
		SEODescription: tr.SEODescription,
		Price:          price,
		WeightKg:       item.WeightKg,
		Images:         crawler.DedupeImages(item.Images),
		SourceURL:      item.URL,
		Vendor:         e.cfg.Vendor,
		Tags:           e.cfg.Tags,
		Status:         catalog.StatusActive,
	}
	if listing.SourceURL == "" {
		listing.SourceURL = c.URL
	}

	rec, err := e.store.Create(ctx, listing)
	// Only translation failures count toward the breaker.
	r.consecutive = 0
	if err != nil {
		s.UploadFailed++
		s.errorf("create %s: %v", key, err)
		return
	}
	r.existingKeys.Add(key)
	s.Uploaded++
	e.log.Debugf("[%s] created %s (%s) at %d", e.cfg.Merchant, key, listing.Title, price)
	e.change(r, key, rec.ID, listing.Title, ActionCreated)
}

// recheck refreshes stock for a listing this merchant already manages.
func (e *Engine) recheck(ctx context.Context, r *run, key string, c crawler.Candidate) {
	item, err := e.crawler.FetchDetail(ctx, c.URL)
	if err != nil {
		r.summary.errorf("recheck %s: %v", c.URL, err)
		return
	}
	if item == nil {
		return
	}
	if IsOutOfStock(item) {
		r.outOfStockKeys.Add(key)
		return
	}
	if e.cfg.DeletionPolicy != PolicyDraft {
		return
	}
	rec, ok := r.group.Get(key)
	if !ok || rec.Status != catalog.StatusDraft {
		return
	}
	if err := e.store.SetStatus(ctx, rec.ID, catalog.StatusActive); err != nil {
		r.summary.errorf("reactivate %s: %v", key, err)
		return
	}
	r.summary.Reactivated++
	e.change(r, key, rec.ID, rec.Title, ActionReactivated)
}

func (e *Engine) cleanup(ctx context.Context, r *run) {
	keys := DeletionSet(r.groupKeys, r.sourceKeys, r.outOfStockKeys)
	if len(keys) > 0 {
		e.log.Infof("[%s] cleanup: %d listings to %s", e.cfg.Merchant, len(keys), e.cfg.DeletionPolicy)
	}
	for _, key := range keys {
		for _, rec := range r.group.All(key) {
			e.remove(ctx, r, key, rec)
		}
		e.publish(r)
	}
}

// remove applies the deletion policy to one listing.
func (e *Engine) remove(ctx context.Context, r *run, key string, rec catalog.TargetRecord) {
	switch e.cfg.DeletionPolicy {
	case PolicyDraft:
		if rec.Status == catalog.StatusDraft {
			r.summary.AlreadyDraft++
			return
		}
		if err := e.store.SetStatus(ctx, rec.ID, catalog.StatusDraft); err != nil {
			r.summary.DeleteFailed++
			r.summary.errorf("draft %s: %v", key, err)
			return
		}
		r.summary.Deleted++
		e.change(r, key, rec.ID, rec.Title, ActionDrafted)
	default:
		if err := e.store.Delete(ctx, rec.ID); err != nil {
			r.summary.DeleteFailed++
			r.summary.errorf("delete %s: %v", key, err)
			return
		}
		r.summary.Deleted++
		e.change(r, key, rec.ID, rec.Title, ActionDeleted)
	}
}

func (e *Engine) change(r *run, key, targetID, title string, action Action) {
	if e.onChange == nil {
		return
	}
	e.onChange(Change{
		RunID:    r.summary.RunID,
		Merchant: e.cfg.Merchant,
		Key:      key,
		TargetID: targetID,
		Title:    title,
		Action:   action,
		At:       time.Now().UTC(),
	})
}

func (e *Engine) publish(r *run) {
	if e.onProgress != nil {
		e.onProgress(r.summary.Snapshot())
	}
}
