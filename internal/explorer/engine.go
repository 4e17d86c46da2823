// internal/explorer/engine.go
package explorer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/browser"
	"github.com/xkilldash9x/scalpel-explore/internal/classify"
	"github.com/xkilldash9x/scalpel-explore/internal/config"
	"github.com/xkilldash9x/scalpel-explore/internal/dom"
	"github.com/xkilldash9x/scalpel-explore/internal/form"
	"github.com/xkilldash9x/scalpel-explore/internal/popup"
)

const (
	flushTimeout = 10 * time.Second
	maxHintHTML  = 20000
)

// Deps are the collaborators an Engine drives. Auth is optional.
type Deps struct {
	Page     schemas.Page
	Frontier schemas.Frontier
	Sink     schemas.ResultsSink
	Oracle   schemas.Oracle
	Auth     schemas.Authenticator
}

// Engine runs the crawl: one page at a time, one element at a time.
type Engine struct {
	cfg        *config.Config
	page       schemas.Page
	frontier   schemas.Frontier
	sink       schemas.ResultsSink
	oracle     schemas.Oracle
	auth       schemas.Authenticator
	orch       *Orchestrator
	popups     *popup.Recovery
	forms      *form.Pipeline
	classifier *classify.Classifier
	runID      string
	logger     *zap.Logger
}

// New wires the orchestrator, popup recovery and the form pipeline around
// a single page.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) (*Engine, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("explorer requires a configuration")
	case deps.Page == nil:
		return nil, errors.New("explorer requires a page")
	case deps.Frontier == nil:
		return nil, errors.New("explorer requires a frontier")
	case deps.Sink == nil:
		return nil, errors.New("explorer requires a results sink")
	case deps.Oracle == nil:
		return nil, errors.New("explorer requires an oracle")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("explorer")

	popups := popup.New(cfg.Popup, logger)
	forms := form.New(cfg.Form, deps.Oracle, logger,
		form.WithRecoverer(popups),
		form.WithScreenshotDir(cfg.Results.Dir))
	popups.AttachForms(forms)

	return &Engine{
		cfg:        cfg,
		page:       deps.Page,
		frontier:   deps.Frontier,
		sink:       deps.Sink,
		oracle:     deps.Oracle,
		auth:       deps.Auth,
		orch:       NewOrchestrator(cfg.Explorer, logger),
		popups:     popups,
		forms:      forms,
		classifier: classify.New(),
		runID:      uuid.New().String(),
		logger:     logger,
	}, nil
}

// RunID identifies this engine's run in every recorded result.
func (e *Engine) RunID() string { return e.runID }

// Run crawls from startURL until the frontier is empty, the page budget is
// spent or ctx is cancelled. The sink is flushed on every exit path,
// including cancellation.
func (e *Engine) Run(ctx context.Context, startURL string) (summary schemas.RunSummary, err error) {
	log := e.logger.With(zap.String("run_id", e.runID))
	summary = schemas.RunSummary{RunID: e.runID, StartURL: startURL, StartedAt: time.Now()}

	defer func() {
		summary.FinishedAt = time.Now()
		summary.Interrupted = ctx.Err() != nil
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		if flushErr := e.sink.Flush(flushCtx, summary); flushErr != nil {
			log.Error("Failed to flush results.", zap.Error(flushErr))
		}
	}()

	if e.auth != nil {
		if err := e.auth.Authenticate(ctx, e.page); err != nil {
			return summary, fmt.Errorf("authentication failed: %w", err)
		}
		log.Info("Authentication hook completed.")
	}

	if !e.frontier.AddURL(startURL, 0) {
		return summary, fmt.Errorf("start URL %q was rejected by the frontier", startURL)
	}
	log.Info("Exploration started.", zap.String("start_url", startURL))

	maxPages := e.cfg.Frontier.MaxPages
	for e.frontier.HasMore() {
		if ctx.Err() != nil {
			log.Warn("Exploration interrupted, flushing collected results.")
			break
		}
		if maxPages > 0 && summary.PagesVisited >= maxPages {
			log.Info("Page budget reached.", zap.Int("max_pages", maxPages))
			break
		}
		task, ok := e.frontier.Next()
		if !ok {
			break
		}
		if e.frontier.IsProcessed(task.URL) {
			continue
		}

		result := e.VisitPage(ctx, task)
		e.frontier.MarkProcessed(task.URL)
		summary.Add(result)
		recordCtx := ctx
		if ctx.Err() != nil {
			recordCtx = context.WithoutCancel(ctx)
		}
		if err := e.sink.Record(recordCtx, result); err != nil {
			log.Error("Failed to record page result.", zap.String("url", task.URL), zap.Error(err))
		}
	}

	log.Info("Exploration finished.",
		zap.Int("pages", summary.PagesVisited),
		zap.Int("elements", summary.ElementsProbed),
		zap.Int("forms", summary.FormsSubmitted))
	return summary, nil
}

// VisitPage explores one page: initial popup recovery, forms, then every
// classified element in priority order. Failures are recorded on the
// result and never propagate.
func (e *Engine) VisitPage(ctx context.Context, task schemas.CrawlTask) (result schemas.PageResult) {
	log := e.logger.With(zap.String("url", task.URL), zap.Int("depth", task.Depth))
	result = schemas.PageResult{
		RunID:     e.runID,
		VisitID:   uuid.New().String(),
		URL:       task.URL,
		Depth:     task.Depth,
		StartedAt: time.Now(),
		Outcomes:  []schemas.ClickOutcome{},
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic during page visit.", zap.Any("panic", r), zap.String("stack", string(debug.Stack())))
			result.Error = fmt.Sprintf("panic: %v", r)
		}
		result.FinishedAt = time.Now()
	}()

	if e.cfg.Explorer.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Explorer.PageTimeout)
		defer cancel()
	}

	if err := e.navigate(ctx, task.URL); err != nil {
		result.Error = err.Error()
		log.Warn("Navigation failed, skipping page.", zap.Error(err))
		return result
	}
	origin, err := e.page.CurrentURL(ctx)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	hooks, err := browser.InstallHooks(ctx, e.page, e.logger)
	if err != nil {
		log.Warn("DOM insertion hooks unavailable for this page.", zap.Error(err))
	} else {
		defer hooks.Teardown(ctx)
	}

	e.recoverPopup(ctx, &result, hooks)

	root, err := browser.Snapshot(ctx, e.page)
	if err != nil {
		result.Error = err.Error()
		log.Warn("Snapshot failed, skipping page.", zap.Error(err))
		return result
	}

	var owned formScope
	if e.cfg.Explorer.SubmitForms {
		owned = scanForms(root)
		if len(owned.roots) > 0 {
			e.submitForms(ctx, &result, root, owned.roots, origin, hooks)
			e.returnToOrigin(ctx, origin, hooks)
			if root, err = browser.Snapshot(ctx, e.page); err != nil {
				result.Error = err.Error()
				return result
			}
			owned = scanForms(root)
		}
	}

	elems := e.candidates(ctx, root, owned)
	result.Elements = len(elems)
	log.Info("Probing page elements.", zap.Int("count", len(elems)), zap.Int("forms", len(result.Forms)))

	for _, el := range elems {
		if ctx.Err() != nil {
			log.Warn("Page visit cut short.", zap.Error(ctx.Err()))
			break
		}
		e.returnToOrigin(ctx, origin, hooks)
		outcome := e.orch.Probe(ctx, e.page, hooks, el)
		e.applyPolicy(ctx, &result, outcome, task.Depth, origin, hooks)
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result
}

// formScope is what the form pipeline handles on a page. Form elements own
// their whole subtree. A formless group is submitted through its container,
// but only its fields are withheld from probing, since the container may
// be a large region with unrelated controls.
type formScope struct {
	roots  []*dom.Node
	forms  []*dom.Node
	fields map[*dom.Node]bool
}

func scanForms(root *dom.Node) formScope {
	forms := classify.FormsIn(root)
	scope := formScope{forms: forms, fields: make(map[*dom.Node]bool)}
	scope.roots = append(scope.roots, forms...)
	for _, g := range classify.LooseFormGroups(root, forms) {
		scope.roots = append(scope.roots, g.Container)
		for _, f := range g.Fields {
			scope.fields[f] = true
		}
	}
	return scope
}

func (s formScope) owns(n *dom.Node) bool {
	if s.fields[n] {
		return true
	}
	for _, f := range s.forms {
		if f.Contains(n) {
			return true
		}
	}
	return false
}

// candidates classifies the page, drops elements the form pipeline already
// handled, merges oracle hints and prioritizes.
func (e *Engine) candidates(ctx context.Context, root *dom.Node, owned formScope) []schemas.ElementDescriptor {
	all := e.classifier.Classify(root, nil)
	elems := make([]schemas.ElementDescriptor, 0, len(all))
	tree := dom.NewTree(root)
	for _, el := range all {
		if len(owned.roots) > 0 {
			if n := resolve(tree, root, el.Selector); n != nil && owned.owns(n) {
				continue
			}
		}
		elems = append(elems, el)
	}
	if e.cfg.Explorer.OracleElementHints {
		elems = append(elems, e.oracleHints(ctx, root, elems)...)
	}
	elems = classify.Prioritize(classify.Dedup(elems))
	if limit := e.cfg.Explorer.MaxElementsPerPage; limit > 0 && len(elems) > limit {
		elems = elems[:limit]
	}
	return elems
}

// oracleHints asks the oracle for interactive selectors the classifier did
// not find. Only selectors resolving to exactly one new node are kept.
func (e *Engine) oracleHints(ctx context.Context, root *dom.Node, known []schemas.ElementDescriptor) []schemas.ElementDescriptor {
	raw, err := e.oracle.Synthesize(ctx, schemas.TaskElementGeneration, map[string]string{
		"test_object_information": dom.Truncate(root.OuterHTML(), maxHintHTML),
	})
	if err != nil {
		e.logger.Warn("Element hints unavailable.", zap.Error(fmt.Errorf("%w: %v", ErrOracle, err)))
		return nil
	}
	var sels []string
	if err := json.Unmarshal(raw, &sels); err != nil {
		e.logger.Warn("Element hints were not a selector list.", zap.Error(err))
		return nil
	}
	seen := make(map[*dom.Node]bool, len(known))
	for _, el := range known {
		if nodes, err := dom.Query(root, el.Selector); err == nil && len(nodes) > 0 {
			seen[nodes[0]] = true
		}
	}
	var out []schemas.ElementDescriptor
	for _, sel := range sels {
		nodes, err := dom.Query(root, sel)
		if err != nil || len(nodes) != 1 || !nodes[0].Visible() || seen[nodes[0]] {
			continue
		}
		n := nodes[0]
		seen[n] = true
		out = append(out, schemas.ElementDescriptor{
			Selector:    sel,
			Tag:         n.Tag,
			Text:        n.Text,
			Visible:     true,
			Interactive: true,
			Type:        e.classifier.Type(n),
		})
	}
	return out
}

func (e *Engine) submitForms(ctx context.Context, result *schemas.PageResult, root *dom.Node, formNodes []*dom.Node, origin string, hooks *browser.HookGuard) {
	descs := make([]schemas.FormDescriptor, 0, len(formNodes))
	for _, f := range formNodes {
		descs = append(descs, form.Extract(root, f))
	}
	for _, desc := range descs {
		if ctx.Err() != nil {
			return
		}
		e.returnToOrigin(ctx, origin, hooks)
		sub := e.forms.Submit(ctx, e.page, desc)
		result.Forms = append(result.Forms, sub)
		if sub.NewURL != "" {
			e.frontier.AddURL(sub.NewURL, result.Depth+1)
		}
		e.recoverPopup(ctx, result, hooks)
	}
}

// applyPolicy acts on a probe outcome: enqueue new URLs and virtual routes,
// and recover from any popup before the next element.
func (e *Engine) applyPolicy(ctx context.Context, result *schemas.PageResult, out schemas.ClickOutcome, depth int, origin string, hooks *browser.HookGuard) {
	switch {
	case out.URLChanged:
		e.frontier.AddURL(out.NewURL, depth+1)
	case out.RouteChanged:
		if resolved, err := ResolveRoute(origin, out.VirtualRoute); err == nil {
			e.frontier.AddURL(resolved, depth+1)
		}
	}
	if out.PopupDetected {
		e.recoverPopup(ctx, result, hooks)
	}
}

func (e *Engine) recoverPopup(ctx context.Context, result *schemas.PageResult, hooks *browser.HookGuard) {
	report, found := e.popups.Recover(ctx, e.page)
	if !found {
		return
	}
	report.RunID, report.VisitID = result.RunID, result.VisitID
	result.Popups = append(result.Popups, report)
	if err := e.sink.RecordPopup(ctx, report); err != nil {
		e.logger.Warn("Failed to record popup report.", zap.Error(err))
	}
	if hooks != nil {
		// A reload tier replaces the document.
		if err := hooks.Install(ctx); err != nil {
			e.logger.Debug("Could not reinstall hooks after popup recovery.", zap.Error(err))
		}
	}
}

// returnToOrigin navigates back when an earlier action left the page,
// since the remaining candidates were enumerated against the origin.
func (e *Engine) returnToOrigin(ctx context.Context, origin string, hooks *browser.HookGuard) {
	if !e.cfg.Explorer.ReturnToOrigin {
		return
	}
	current, err := e.page.CurrentURL(ctx)
	if err == nil && current == origin {
		return
	}
	if err := e.navigate(ctx, origin); err != nil {
		e.logger.Warn("Could not return to origin.", zap.String("origin", origin), zap.Error(err))
		return
	}
	if hooks != nil {
		if err := hooks.Install(ctx); err != nil {
			e.logger.Debug("Could not reinstall hooks at origin.", zap.Error(err))
		}
	}
}

// navigate loads u. A wait that runs out while the parent context is still
// live is read as a slow page, not a failure.
func (e *Engine) navigate(ctx context.Context, u string) error {
	err := e.page.Navigate(ctx, u)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		e.logger.Debug("Navigation wait expired, continuing.", zap.String("url", u),
			zap.Error(fmt.Errorf("%w: %v", ErrNavigationTimeout, err)))
		return nil
	}
	return err
}

// ResolveRoute turns a sampled virtual route into an absolute URL against
// the page it was observed on.
func ResolveRoute(origin, route string) (string, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(route)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// resolve returns the first node sel matches, or nil.
func resolve(tree *dom.Tree, root *dom.Node, sel string) *dom.Node {
	compiled, err := dom.Compile(sel)
	if err != nil {
		return nil
	}
	if nodes := tree.QueryAll(compiled, root); len(nodes) > 0 {
		return nodes[0]
	}
	return nil
}
