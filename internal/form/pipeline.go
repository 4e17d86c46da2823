// internal/form/pipeline.go
package form

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/browser"
	"github.com/xkilldash9x/scalpel-explore/internal/classify"
	"github.com/xkilldash9x/scalpel-explore/internal/config"
	"github.com/xkilldash9x/scalpel-explore/internal/dom"
	"github.com/xkilldash9x/scalpel-explore/internal/oracle"
)

var (
	// ErrFieldExhausted is returned when every fill method failed for a field.
	ErrFieldExhausted = errors.New("all fill methods failed")
	// ErrScopeNotFound is returned when a scope selector matches nothing.
	ErrScopeNotFound = errors.New("scope not found")
)

// Submit strategies an oracle may name.
const (
	StrategyButtonClick = "button_click"
	StrategyFormSubmit  = "form_submit"
	StrategyEnterKey    = "enter_key"
)

// defaultSubmitSelectors are tried inside the form when no candidate worked.
var defaultSubmitSelectors = []string{
	`button[type="submit"]`,
	`input[type="submit"]`,
	`button`,
	`.btn-primary`,
	`[role="button"]`,
}

var fillModes = []browser.FillMode{browser.FillEvents, browser.FillProperty, browser.FillScroll}

// Recoverer forces the page back to an operational state. It is satisfied by
// popup.Recovery.
type Recoverer interface {
	ForceRecover(ctx context.Context, page schemas.Page) error
}

// Pipeline fills and submits forms, validating each attempt and retrying
// with simplified or corrected values.
type Pipeline struct {
	cfg       config.FormConfig
	oracle    schemas.Oracle
	recoverer Recoverer
	shotDir   string
	logger    *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithScreenshotDir stores failure screenshots under dir.
func WithScreenshotDir(dir string) Option {
	return func(p *Pipeline) { p.shotDir = dir }
}

// WithRecoverer sets the recovery used once all attempts fail.
func WithRecoverer(r Recoverer) Option {
	return func(p *Pipeline) { p.recoverer = r }
}

// New creates a Pipeline.
func New(cfg config.FormConfig, oracle schemas.Oracle, logger *zap.Logger, opts ...Option) *Pipeline {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.EssentialMin <= 0 {
		cfg.EssentialMin = 2
	}
	if cfg.EssentialMax < cfg.EssentialMin {
		cfg.EssentialMax = 5
	}
	p := &Pipeline{
		cfg:    cfg,
		oracle: oracle,
		logger: logger.Named("form"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SubmitWithin submits every form under scope. An empty scope means the
// whole document. A scope holding fields but no form element is itself
// treated as the form.
func (p *Pipeline) SubmitWithin(ctx context.Context, page schemas.Page, scope string) ([]schemas.SubmissionResult, error) {
	root, err := browser.Snapshot(ctx, page)
	if err != nil {
		return nil, err
	}
	region := root
	if scope != "" {
		nodes, err := dom.Query(root, scope)
		if err != nil {
			return nil, err
		}
		if len(nodes) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrScopeNotFound, scope)
		}
		region = nodes[0]
	}

	forms := classify.FormsIn(region)
	if len(forms) == 0 && scope != "" {
		forms = []*dom.Node{region}
	}

	results := make([]schemas.SubmissionResult, 0, len(forms))
	for _, f := range forms {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		desc := Extract(root, f)
		if len(desc.Inputs) == 0 && len(desc.Buttons) == 0 {
			continue
		}
		results = append(results, p.Submit(ctx, page, desc))
	}
	return results, nil
}

// plan is the value and submission intent for one form.
type plan struct {
	targets    []target
	candidates []string
	strategy   string
}

// Submit runs the fill, submit and validate loop for one form.
func (p *Pipeline) Submit(ctx context.Context, page schemas.Page, desc schemas.FormDescriptor) schemas.SubmissionResult {
	log := p.logger.With(zap.String("form", desc.Selector))
	result := schemas.SubmissionResult{FormSelector: desc.Selector, FieldsUsed: []int{}}

	origin, err := page.CurrentURL(ctx)
	if err != nil {
		log.Warn("Could not read URL before submission.", zap.Error(err))
	}
	pl, err := p.plan(ctx, desc)
	if err != nil {
		result.ValidationDetails = err.Error()
		return result
	}

	// Indicators left by an earlier attempt stay in play; they are the
	// feedback the retry acts on.
	base := p.baseline(ctx, page)

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			result.ValidationDetails = ctx.Err().Error()
			return result
		}
		result.Attempts = attempt
		fillErrs := p.fillAll(ctx, page, pl.targets)
		result.FieldsUsed = append(result.FieldsUsed, len(pl.targets))

		submitted := p.dispatch(ctx, page, desc.Selector, pl)
		if err := sleep(ctx, p.cfg.SubmitWait); err != nil {
			result.ValidationDetails = err.Error()
			return result
		}

		verdict := p.validate(ctx, page, base, desc.Selector, origin, submitted)
		result.ValidationDetails = verdict.Details
		result.ErrorSignals = verdict.Signals
		log.Debug("Submission attempt validated.",
			zap.Int("attempt", attempt),
			zap.Int("fields", len(pl.targets)),
			zap.Bool("success", verdict.Success),
			zap.Strings("signals", verdict.Signals))
		if verdict.Success {
			result.Success = true
			if current, err := page.CurrentURL(ctx); err == nil && current != origin {
				result.NewURL = current
			}
			return result
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}

		feedback := strings.Join(append(append([]string{}, verdict.Signals...), fillErrs...), "; ")
		if feedback == "" {
			feedback = verdict.Details
		}
		if IsInteractionError(feedback) {
			pl.targets = essentialSubset(pl.targets, p.cfg.EssentialMin, p.cfg.EssentialMax)
			log.Info("Retrying with essential fields only.", zap.Int("fields", len(pl.targets)))
			continue
		}
		p.fix(ctx, desc, pl, feedback)
	}

	log.Warn("Form submission failed after all attempts.",
		zap.Int("attempts", result.Attempts), zap.String("details", result.ValidationDetails))
	p.afterFailure(ctx, page, &result)
	return result
}

// plan synthesizes values. Forms with fields ask for values only and map
// them back by name; forms without fields send their markup and take the
// oracle's selectors and submit strategy as given.
func (p *Pipeline) plan(ctx context.Context, desc schemas.FormDescriptor) (*plan, error) {
	structural := SubmitCandidates(desc.Buttons)
	if len(desc.Inputs) == 0 {
		return p.planFromMarkup(ctx, desc, structural)
	}

	infos := make([]oracle.FieldInfo, len(desc.Inputs))
	for i, f := range desc.Inputs {
		infos[i] = fieldInfo(f)
	}
	infoJSON, err := json.Marshal(infos)
	if err != nil {
		return nil, fmt.Errorf("failed to encode field info: %w", err)
	}
	raw, err := p.oracle.Synthesize(ctx, schemas.TaskFormFillValuesOnly, map[string]string{"form_fields_info": string(infoJSON)})
	if err != nil {
		return nil, err
	}
	reply := DecodeValues(raw)
	if len(reply) == 0 {
		p.logger.Info("Values-only reply was empty, asking with form markup.", zap.String("form", desc.Selector))
		raw, err = p.oracle.Synthesize(ctx, schemas.TaskFormFill, map[string]string{"form_html": desc.HTML})
		if err != nil {
			return nil, err
		}
		reply = DecodeValues(raw)
	}

	pl := &plan{candidates: structural, strategy: StrategyButtonClick}
	for _, f := range desc.Inputs {
		v, ok := MatchValue(f, reply)
		if !ok {
			v = oracle.DefaultValue(fieldInfo(f))
		}
		pl.targets = append(pl.targets, target{field: f, value: v})
	}
	return pl, nil
}

type withSubmitReply struct {
	FormData          map[string]interface{} `json:"formData"`
	SubmitSelectors   []string               `json:"submitSelectors"`
	RecommendedSubmit string                 `json:"recommendedSubmitSelector"`
	SubmitStrategy    string                 `json:"submitStrategy"`
}

func (p *Pipeline) planFromMarkup(ctx context.Context, desc schemas.FormDescriptor, structural []string) (*plan, error) {
	raw, err := p.oracle.Synthesize(ctx, schemas.TaskFormFillWithSubmit, map[string]string{"form_html": desc.HTML})
	if err != nil {
		return nil, err
	}
	var reply withSubmitReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		p.logger.Warn("Unusable fill-with-submit reply.", zap.Error(err))
	}

	pl := &plan{strategy: reply.SubmitStrategy}
	for _, k := range sortedKeys(reply.FormData) {
		pl.targets = append(pl.targets, target{
			field: schemas.FieldDescriptor{Selector: keySelector(k), NameHint: k, InputKind: "text"},
			value: stringify(reply.FormData[k]),
		})
	}
	var cands []string
	if reply.RecommendedSubmit != "" {
		cands = append(cands, reply.RecommendedSubmit)
	}
	cands = append(cands, reply.SubmitSelectors...)
	pl.candidates = dedupe(append(cands, structural...))
	return pl, nil
}

// fix asks the oracle to correct the last values given the page feedback.
// The field set is kept; only values change.
func (p *Pipeline) fix(ctx context.Context, desc schemas.FormDescriptor, pl *plan, feedback string) {
	last := make(map[string]string, len(pl.targets))
	for _, t := range pl.targets {
		last[t.field.Selector] = t.value
	}
	lastJSON, err := json.Marshal(last)
	if err != nil {
		p.logger.Warn("Could not encode previous values, asking for a fix without them.", zap.Error(err))
		lastJSON = []byte("{}")
	}
	raw, err := p.oracle.Synthesize(ctx, schemas.TaskFormFix, map[string]string{
		"form_html":      desc.HTML,
		"last_data":      string(lastJSON),
		"error_feedback": feedback,
	})
	if err != nil {
		p.logger.Warn("Form fix query failed, retrying with previous values.", zap.Error(err))
		return
	}
	reply := DecodeValues(raw)
	for i, t := range pl.targets {
		if v, ok := MatchValue(t.field, reply); ok {
			pl.targets[i].value = v
		}
	}
}

// fillAll fills every target and returns the failures as feedback text.
func (p *Pipeline) fillAll(ctx context.Context, page schemas.Page, targets []target) []string {
	var failures []string
	for _, t := range targets {
		if err := p.fillField(ctx, page, t.field, t.value); err != nil {
			p.logger.Debug("Field could not be filled.", zap.String("field", t.field.Selector), zap.Error(err))
			failures = append(failures, err.Error())
		}
	}
	return failures
}

// fillField tries each fill method on the field's selector, then fuzzy
// locators built from its name hint.
func (p *Pipeline) fillField(ctx context.Context, page schemas.Page, f schemas.FieldDescriptor, value string) error {
	var lastErr error
	for _, mode := range fillModes {
		err := browser.Fill(ctx, page, f.Selector, value, mode)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, browser.ErrElementNotFound) {
			break
		}
	}
	for _, sel := range FuzzySelectors(f.NameHint) {
		if err := browser.Fill(ctx, page, sel, value, browser.FillEvents); err == nil {
			p.logger.Debug("Filled field through fuzzy locator.", zap.String("field", f.Selector), zap.String("locator", sel))
			return nil
		}
	}
	return fmt.Errorf("%w for %s: %v", ErrFieldExhausted, f.NameHint, lastErr)
}

// dispatch submits the form: recommended and structural candidates first,
// then the strategy fallback. It reports whether anything was dispatched.
func (p *Pipeline) dispatch(ctx context.Context, page schemas.Page, formSel string, pl *plan) bool {
	for _, sel := range pl.candidates {
		if err := page.Click(ctx, sel); err == nil {
			return true
		}
	}

	switch pl.strategy {
	case StrategyFormSubmit:
		if formSel != "" && browser.SubmitForm(ctx, page, formSel) == nil {
			return true
		}
	case StrategyEnterKey:
		if len(pl.targets) > 0 && browser.Focus(ctx, page, pl.targets[len(pl.targets)-1].field.Selector) == nil {
			if page.PressKey(ctx, "Enter") == nil {
				return true
			}
		}
	}

	if formSel == "" {
		return false
	}
	for _, s := range defaultSubmitSelectors {
		if page.Click(ctx, formSel+" "+s) == nil {
			return true
		}
	}
	return browser.SubmitForm(ctx, page, formSel) == nil
}

// baseline records the indicators visible before the form is touched. A
// failed read yields an empty baseline.
func (p *Pipeline) baseline(ctx context.Context, page schemas.Page) Baseline {
	root, err := browser.Snapshot(ctx, page)
	if err != nil {
		p.logger.Debug("No indicator baseline, snapshot failed.", zap.Error(err))
		return Baseline{}
	}
	base := TakeBaseline(root)
	if base.Len() > 0 {
		p.logger.Debug("Indicators visible before submission will be ignored.", zap.Int("count", base.Len()))
	}
	return base
}

func (p *Pipeline) validate(ctx context.Context, page schemas.Page, base Baseline, formSel, origin string, submitted bool) Verdict {
	root, err := browser.Snapshot(ctx, page)
	if err != nil {
		return Verdict{Details: fmt.Sprintf("snapshot failed: %v", err)}
	}
	current, _ := page.CurrentURL(ctx)
	return Validate(root, base, formSel, origin, current, submitted)
}

// afterFailure captures the page and forces recovery so exploration can go on.
func (p *Pipeline) afterFailure(ctx context.Context, page schemas.Page, result *schemas.SubmissionResult) {
	if p.cfg.ScreenshotOnFailure && p.shotDir != "" {
		if path, err := p.screenshot(ctx, page); err != nil {
			p.logger.Warn("Failure screenshot not saved.", zap.Error(err))
		} else {
			p.logger.Info("Failure screenshot saved.", zap.String("path", path))
		}
	}
	if p.recoverer == nil {
		return
	}
	if err := p.recoverer.ForceRecover(ctx, page); err != nil {
		p.logger.Warn("Forced recovery after form failure did not stabilize the page.", zap.Error(err))
		return
	}
	result.Recovered = true
}

func (p *Pipeline) screenshot(ctx context.Context, page schemas.Page) (string, error) {
	data, err := page.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p.shotDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(p.shotDir, fmt.Sprintf("form-failure-%s.png", uuid.NewString()))
	return path, os.WriteFile(path, data, 0o644)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
