package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
)

// transientHints are substrings of error causes worth one retry after a
// reconnect or session re-attach.
var transientHints = []string{
	"context canceled",
	"target closed",
	"session closed",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
	"not connected",
}

type surfaceTab struct {
	info      SurfaceInfo
	mu        sync.Mutex
	sessionID string
}

// Client drives chart surface pages in a Chromium instance, one tab per
// chart.
type Client struct {
	cdpURL      string
	pageBase    string
	evalTimeout time.Duration

	mu  sync.Mutex
	cdp *rawCDP
	// tabs is keyed by chart id.
	tabs map[string]*surfaceTab

	chartLocksMu sync.Mutex
	chartLocks   map[string]*sync.Mutex
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// NewClient returns a client for the CDP endpoint at cdpURL. pageBase is the
// URL of the surface page the tabs load, e.g. http://127.0.0.1:8188/surface.
func NewClient(cdpURL, pageBase string, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:      cdpURL,
		pageBase:    pageBase,
		evalTimeout: evalTimeout,
		tabs:        make(map[string]*surfaceTab),
		chartLocks:  make(map[string]*sync.Mutex),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}
	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.detachAllLocked()
	if c.cdp != nil {
		if err := c.cdp.close(); err != nil {
			slog.Debug("cdpcontrol stale connection close failed", "error", err)
		}
	}
	c.cdp = newRawCDP(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}
	c.cdp.registerEventHandler("Target.detachedFromTarget", func(_ string, params json.RawMessage) {
		var ev struct {
			SessionID string `json:"sessionId"`
		}
		if json.Unmarshal(params, &ev) != nil || ev.SessionID == "" {
			return
		}
		// The read loop must not block on c.mu.
		go c.forgetSession(ev.SessionID)
	})
	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "surfaces", len(c.tabs))
	return nil
}

// Close detaches every session and closes the connection. Surface tabs are
// left open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detachAllLocked()
	if c.cdp == nil {
		return nil
	}
	err := c.cdp.close()
	c.cdp = nil
	return err
}

func (c *Client) detachAllLocked() {
	if c.cdp == nil {
		return
	}
	for chartID, tab := range c.tabs {
		tab.mu.Lock()
		if tab.sessionID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			if err := c.cdp.detachFromTarget(ctx, tab.sessionID); err != nil {
				slog.Debug("cdpcontrol detach cleanup failed", "chart_id", chartID, "error", err)
			}
			cancel()
			tab.sessionID = ""
		}
		tab.mu.Unlock()
	}
}

// forgetSession clears a session the browser detached so the next eval
// re-attaches.
func (c *Client) forgetSession(sessionID string) {
	c.mu.Lock()
	tabs := make([]*surfaceTab, 0, len(c.tabs))
	for _, tab := range c.tabs {
		tabs = append(tabs, tab)
	}
	c.mu.Unlock()
	for _, tab := range tabs {
		tab.mu.Lock()
		if tab.sessionID == sessionID {
			tab.sessionID = ""
			slog.Debug("cdpcontrol session detached", "chart_id", tab.info.ChartID, "session_id", sessionID)
		}
		tab.mu.Unlock()
	}
}

// SurfaceURL returns the page URL a chart's tab loads.
func (c *Client) SurfaceURL(chartID string) string {
	return strings.TrimRight(c.pageBase, "/") + "?chart=" + url.QueryEscape(chartID)
}

// OpenSurface opens a tab for chartID sized width x height and waits for
// the page bridge to load.
func (c *Client) OpenSurface(ctx context.Context, chartID string, width, height int) (SurfaceInfo, error) {
	chartID = strings.TrimSpace(chartID)
	if chartID == "" {
		return SurfaceInfo{}, newError(CodeValidation, "chart id is required", nil)
	}
	if err := c.ensureConnected(ctx); err != nil {
		return SurfaceInfo{}, err
	}
	lock := c.chartLock(chartID)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	cdp := c.cdp
	existing := c.tabs[chartID]
	c.mu.Unlock()
	if existing != nil {
		return existing.info, nil
	}

	pageURL := c.SurfaceURL(chartID)
	targetID, err := cdp.createTarget(ctx, pageURL)
	if err != nil {
		return SurfaceInfo{}, newError(CodeCDPUnavailable, "create surface tab failed", err)
	}
	tab := &surfaceTab{info: SurfaceInfo{ChartID: chartID, TargetID: string(targetID), URL: pageURL}}
	sid, err := c.ensureSession(ctx, cdp, tab)
	if err != nil {
		c.closeTarget(cdp, targetID)
		return SurfaceInfo{}, err
	}
	if err := cdp.setViewport(ctx, sid, width, height); err != nil {
		slog.Warn("cdpcontrol viewport override failed", "chart_id", chartID, "error", err)
	}
	if err := c.waitReady(ctx, cdp, tab); err != nil {
		c.closeTarget(cdp, targetID)
		return SurfaceInfo{}, err
	}

	c.mu.Lock()
	c.tabs[chartID] = tab
	c.mu.Unlock()
	slog.Info("cdpcontrol surface opened", "chart_id", chartID, "target_id", targetID)
	return tab.info, nil
}

// CloseSurface closes the tab of chartID.
func (c *Client) CloseSurface(ctx context.Context, chartID string) error {
	lock := c.chartLock(chartID)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	tab := c.tabs[chartID]
	delete(c.tabs, chartID)
	cdp := c.cdp
	c.mu.Unlock()
	c.dropChartLock(chartID)
	if tab == nil {
		return newError(CodeSurfaceNotFound, "surface not found: "+chartID, nil)
	}
	if cdp == nil {
		return nil
	}
	if err := cdp.closeTarget(ctx, target.ID(tab.info.TargetID)); err != nil {
		return newError(CodeCDPUnavailable, "close surface tab failed", err)
	}
	return nil
}

// ListSurfaces returns the open surface tabs that still exist in the browser.
func (c *Client) ListSurfaces(ctx context.Context) ([]SurfaceInfo, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	targets, err := cdp.listTargets(ctx)
	if err != nil {
		return nil, newError(CodeCDPUnavailable, "failed to list targets", err)
	}
	titles := make(map[target.ID]string, len(targets))
	for _, t := range targets {
		if t.Type == "page" {
			titles[t.TargetID] = t.Title
		}
	}

	c.mu.Lock()
	out := make([]SurfaceInfo, 0, len(c.tabs))
	for chartID, tab := range c.tabs {
		title, ok := titles[target.ID(tab.info.TargetID)]
		if !ok {
			slog.Warn("cdpcontrol surface tab vanished", "chart_id", chartID, "target_id", tab.info.TargetID)
			delete(c.tabs, chartID)
			continue
		}
		tab.info.Title = title
		out = append(out, tab.info)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ChartID < out[j].ChartID })
	return out, nil
}

// Screenshot captures the chart's tab as PNG.
func (c *Client) Screenshot(ctx context.Context, chartID string) ([]byte, error) {
	lock := c.chartLock(chartID)
	lock.Lock()
	defer lock.Unlock()

	tab, cdp, err := c.lookup(chartID)
	if err != nil {
		return nil, err
	}
	sid, err := c.ensureSession(ctx, cdp, tab)
	if err != nil {
		return nil, err
	}
	img, err := cdp.captureScreenshot(ctx, sid)
	if err != nil {
		return nil, newError(CodeEvalFailure, "capture screenshot failed", err)
	}
	return img, nil
}

// evalOnSurface runs js on the chart's tab and decodes the envelope data
// into out. One retry follows a transient failure.
func (c *Client) evalOnSurface(ctx context.Context, chartID, js string, out any) error {
	lock := c.chartLock(chartID)
	lock.Lock()
	defer lock.Unlock()

	err := c.evalOnce(ctx, chartID, js, out)
	if err == nil || !c.shouldRetry(err) {
		return err
	}

	slog.Warn("cdpcontrol eval retry after transient failure", "chart_id", chartID, "error", err)
	if c.asCode(err, CodeCDPUnavailable) {
		if recErr := c.reconnect(ctx); recErr != nil {
			slog.Error("cdpcontrol reconnect failed during retry", "chart_id", chartID, "error", recErr)
			return recErr
		}
	}
	return c.evalOnce(ctx, chartID, js, out)
}

func (c *Client) evalOnce(ctx context.Context, chartID, js string, out any) error {
	tab, cdp, err := c.lookup(chartID)
	if err != nil {
		return err
	}
	sid, err := c.ensureSession(ctx, cdp, tab)
	if err != nil {
		return err
	}

	evalCtx, cancel := context.WithTimeout(ctx, c.evalTimeout)
	defer cancel()
	raw, err := cdp.evaluate(evalCtx, sid, js)
	if err != nil {
		slog.Warn("cdpcontrol eval failed", "chart_id", chartID, "target_id", tab.info.TargetID, "error", err)
		tab.mu.Lock()
		tab.sessionID = ""
		tab.mu.Unlock()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}
	return decodeEnvelope(raw, out)
}

func decodeEnvelope(raw string, out any) error {
	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// waitReady polls the page until the surface bridge reports ready.
func (c *Client) waitReady(ctx context.Context, cdp *rawCDP, tab *surfaceTab) error {
	deadline := time.Now().Add(c.evalTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	js := jsReady()
	for {
		sid, err := c.ensureSession(ctx, cdp, tab)
		if err != nil {
			return err
		}
		raw, err := cdp.evaluate(ctx, sid, js)
		if err == nil {
			var ready bool
			if decodeEnvelope(raw, &ready) == nil && ready {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return newError(CodeAPIUnavailable, "surface page did not load", err)
		}
		select {
		case <-ctx.Done():
			return newError(CodeEvalTimeout, "waiting for surface page", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) lookup(chartID string) (*surfaceTab, *rawCDP, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tab := c.tabs[chartID]
	if tab == nil {
		return nil, nil, newError(CodeSurfaceNotFound, "surface not found: "+chartID, nil)
	}
	if c.cdp == nil {
		return nil, nil, newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}
	return tab, c.cdp, nil
}

// ensureSession returns the tab's session id, attaching if needed.
func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, tab *surfaceTab) (string, error) {
	tab.mu.Lock()
	defer tab.mu.Unlock()
	if tab.sessionID != "" {
		return tab.sessionID, nil
	}
	sid, err := cdp.attachToTarget(ctx, target.ID(tab.info.TargetID))
	if err != nil {
		return "", newError(CodeCDPUnavailable, "attach to target failed", err)
	}
	tab.sessionID = sid
	slog.Debug("cdpcontrol session attached", "chart_id", tab.info.ChartID, "target_id", tab.info.TargetID, "session_id", sid)
	return sid, nil
}

func (c *Client) closeTarget(cdp *rawCDP, id target.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := cdp.closeTarget(ctx, id); err != nil {
		slog.Debug("cdpcontrol target cleanup failed", "target_id", id, "error", err)
	}
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil && c.cdp.connected()
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) chartLock(chartID string) *sync.Mutex {
	c.chartLocksMu.Lock()
	defer c.chartLocksMu.Unlock()
	m, ok := c.chartLocks[chartID]
	if !ok {
		m = &sync.Mutex{}
		c.chartLocks[chartID] = m
	}
	return m
}

func (c *Client) dropChartLock(chartID string) {
	c.chartLocksMu.Lock()
	delete(c.chartLocks, chartID)
	c.chartLocksMu.Unlock()
}

func (c *Client) shouldRetry(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	switch coded.Code {
	case CodeCDPUnavailable:
		return true
	case CodeEvalFailure:
		if coded.Cause == nil {
			return false
		}
		cause := strings.ToLower(coded.Cause.Error())
		for _, hint := range transientHints {
			if strings.Contains(cause, hint) {
				return true
			}
		}
	}
	return false
}

func (c *Client) asCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}
