// Package browsercap drives a Chrome instance through Rod and routes the
// page's matching network calls through a collector's transport, so the
// GraphQL traffic of a real web application is captured without touching
// the application.
//
// Requests whose URL matches the collector's pattern are replayed by Go
// with the capturing transport and the response is handed back to the page.
// Everything else continues on Chrome's own network stack.
package browsercap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/schemawatch/collector"
)

// Capturer is what a Session needs from the collector.
type Capturer interface {
	Matches(rawURL string) bool
	Transport(base http.RoundTripper) http.RoundTripper
}

var _ Capturer = (*collector.Collector)(nil)

// Session owns one browser and the pages opened in it.
type Session struct {
	cfg    collector.BrowserConfig
	src    Capturer
	client *http.Client
	logger *slog.Logger
	block  map[string]bool

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	pages   []*page
	closed  bool
}

type page struct {
	p      *rod.Page
	router *rod.HijackRouter
}

// New returns a Session. Call Start before Visit.
func New(c Capturer, cfg collector.BrowserConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	block := make(map[string]bool, len(cfg.Blocking))
	for _, t := range cfg.Blocking {
		block[strings.ToLower(t)] = true
	}
	return &Session{
		cfg:    cfg,
		src:    c,
		client: &http.Client{Transport: c.Transport(nil)},
		logger: logger,
		block:  block,
	}
}

// Start launches Chrome, or connects to cfg.Remote when set.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("browsercap: session closed")
	}
	if s.browser != nil {
		return nil
	}

	wsURL := s.cfg.Remote
	if wsURL == "" {
		l := launcher.New().
			Context(ctx).
			Headless(s.cfg.IsHeadless()).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browsercap: launch: %w", err)
		}
		wsURL = u
		s.lnch = l
		s.logger.Info("browsercap: launched local chrome", "headless", s.cfg.IsHeadless())
	} else {
		s.logger.Info("browsercap: connecting to remote", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		s.cleanupLocked()
		return fmt.Errorf("browsercap: connect: %w", err)
	}
	s.browser = b
	return nil
}

// Visit opens url in a new tab with interception installed and waits for
// the load event. The tab stays open, and keeps being captured, until
// Close.
func (s *Session) Visit(ctx context.Context, url string) error {
	s.mu.Lock()
	b := s.browser
	s.mu.Unlock()
	if b == nil {
		return errors.New("browsercap: not started")
	}

	var (
		p   *rod.Page
		err error
	)
	if s.cfg.Stealth {
		p, err = stealth.Page(b)
	} else {
		p, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return fmt.Errorf("browsercap: create tab: %w", err)
	}

	router := p.HijackRequests()
	if err := router.Add("*", "", s.hijack); err != nil {
		p.Close()
		return fmt.Errorf("browsercap: hijack: %w", err)
	}
	go router.Run()

	s.mu.Lock()
	s.pages = append(s.pages, &page{p: p, router: router})
	s.mu.Unlock()

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := p.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browsercap: navigate %s: %w", url, err)
	}
	if err := p.Context(navCtx).WaitLoad(); err != nil {
		s.logger.Warn("browsercap: wait load", "url", url, "error", err)
	}
	s.logger.Info("browsercap: page loaded", "url", url)
	return nil
}

// hijack decides the fate of one intercepted request.
func (s *Session) hijack(h *rod.Hijack) {
	if shouldBlock(s.block, string(h.Request.Type())) {
		h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		return
	}
	u := h.Request.URL().String()
	if !s.src.Matches(u) {
		h.ContinueRequest(&proto.FetchContinueRequest{})
		return
	}
	if err := h.LoadResponse(s.client, true); err != nil {
		s.logger.Debug("browsercap: replay failed", "url", u, "error", err)
		h.Response.Fail(proto.NetworkErrorReasonFailed)
	}
}

// Run starts the browser, visits every configured page and keeps them open
// until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	defer s.Close()
	for _, u := range s.cfg.Pages {
		if err := s.Visit(ctx, u); err != nil {
			s.logger.Error("browsercap: visit failed", "url", u, "error", err)
		}
	}
	<-ctx.Done()
	return nil
}

// Close stops interception and shuts the browser down.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cleanupLocked()
	return nil
}

func (s *Session) cleanupLocked() {
	for _, pg := range s.pages {
		pg.router.Stop()
		pg.p.Close()
	}
	s.pages = nil
	if s.browser != nil {
		s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
}

// shouldBlock maps CDP resource types onto the configured names.
func shouldBlock(block map[string]bool, resType string) bool {
	switch lower := strings.ToLower(resType); lower {
	case "image":
		return block["images"]
	case "font":
		return block["fonts"]
	case "media":
		return block["media"]
	case "stylesheet":
		return block["stylesheets"]
	default:
		return block[lower]
	}
}
