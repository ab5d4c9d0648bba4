package platform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	xdraw "golang.org/x/image/draw"

	"gamepilot/internal/capture"
	"gamepilot/internal/config"
	"gamepilot/internal/game"
)

// Timeouts for browser round trips.
const (
	NavigateTimeout   = 60 * time.Second
	screenshotTimeout = 5 * time.Second
	gestureSlack      = 5 * time.Second
)

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	URL      string
	Width    int
	Height   int
	Headless bool
	Logger   *log.Logger
}

// Browser drives a Chrome tab emulating a touch device of Width x Height.
type Browser struct {
	cfg    BrowserConfig
	logger *log.Logger

	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewBrowser creates a browser surface. The browser is not launched until
// Start.
func NewBrowser(cfg BrowserConfig) *Browser {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 1080, 1920
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Browser{cfg: cfg, logger: cfg.Logger.WithPrefix("browser")}
}

// Start launches Chrome, restores cookies, enables touch emulation and
// navigates to the configured URL.
func (b *Browser) Start(ctx context.Context, cookies []config.CookieData) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("disable-gpu", false),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(b.cfg.Width, b.cfg.Height),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		b.logger.Debugf(format, args...)
	}))

	b.mu.Lock()
	b.allocCtx, b.allocCancel = allocCtx, allocCancel
	b.ctx, b.cancel = tabCtx, cancel
	b.mu.Unlock()

	// the first Run launches the browser and must not carry a deadline
	if err := chromedp.Run(tabCtx); err != nil {
		return fmt.Errorf("browser: launch: %w", err)
	}

	if err := b.SetCookies(cookies); err != nil {
		b.logger.Warn("failed to set cookies before navigation", "err", err)
	}

	navCtx, navCancel := context.WithTimeout(tabCtx, NavigateTimeout)
	defer navCancel()

	err := chromedp.Run(navCtx,
		emulation.SetDeviceMetricsOverride(int64(b.cfg.Width), int64(b.cfg.Height), 1, true),
		emulation.SetTouchEmulationEnabled(true).WithMaxTouchPoints(5),
		chromedp.Navigate(b.cfg.URL),
	)
	if err != nil {
		return fmt.Errorf("browser: navigate %s: %w", b.cfg.URL, err)
	}
	b.logger.Info("navigation completed", "url", b.cfg.URL, "size", fmt.Sprintf("%dx%d", b.cfg.Width, b.cfg.Height))
	return nil
}

// tab returns the tab context, or nil once the browser is gone.
func (b *Browser) tab() context.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.ctx == nil || b.ctx.Err() != nil {
		return nil
	}
	return b.ctx
}

// Capture takes a screenshot of the viewport at scale. A closed or never
// started browser reports capture.ErrUnavailable.
func (b *Browser) Capture(ctx context.Context, scale float64) (capture.Shot, error) {
	tab := b.tab()
	if tab == nil {
		return capture.Shot{}, capture.ErrUnavailable
	}

	captureCtx, cancel := context.WithTimeout(tab, screenshotTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var buf []byte
	err := chromedp.Run(captureCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithClip(&page.Viewport{
				Width:  float64(b.cfg.Width),
				Height: float64(b.cfg.Height),
				Scale:  scale,
			}).
			Do(ctx)
		return err
	}))
	if err != nil {
		if b.tab() == nil {
			return capture.Shot{}, capture.ErrUnavailable
		}
		return capture.Shot{}, fmt.Errorf("browser: screenshot: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return capture.Shot{}, fmt.Errorf("browser: decode screenshot: %w", err)
	}
	return capture.Shot{
		Image:        toRGBA(img),
		ScreenWidth:  b.cfg.Width,
		ScreenHeight: b.cfg.Height,
	}, nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(rgba, rgba.Bounds(), img, bounds.Min, xdraw.Src)
	return rgba
}

// touch dispatches one touch event in the tab.
func touch(ctx context.Context, kind input.TouchType, points []*input.TouchPoint) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchTouchEvent(kind, points).Do(ctx)
	}))
}

func touchPoint(id, x, y int) *input.TouchPoint {
	return &input.TouchPoint{X: float64(x), Y: float64(y), ID: float64(id)}
}

// gesture runs fn against the tab with a deadline of d plus slack. The
// caller's context is not consulted: a started gesture always finishes.
func (b *Browser) gesture(name string, d time.Duration, fn func(ctx context.Context) error) bool {
	tab := b.tab()
	if tab == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(tab, d+gestureSlack)
	defer cancel()
	if err := fn(ctx); err != nil {
		b.logger.Debug("gesture rejected", "gesture", name, "err", err)
		return false
	}
	return true
}

// Tap presses (x, y) for d.
func (b *Browser) Tap(_ context.Context, x, y int, d time.Duration) bool {
	return b.gesture("tap", d, func(ctx context.Context) error {
		if err := touch(ctx, input.TouchStart, []*input.TouchPoint{touchPoint(0, x, y)}); err != nil {
			return err
		}
		time.Sleep(d)
		return touch(ctx, input.TouchEnd, []*input.TouchPoint{})
	})
}

// Swipe drags from (x1, y1) to (x2, y2) over d.
func (b *Browser) Swipe(_ context.Context, x1, y1, x2, y2 int, d time.Duration) bool {
	return b.gesture("swipe", d, func(ctx context.Context) error {
		if err := touch(ctx, input.TouchStart, []*input.TouchPoint{touchPoint(0, x1, y1)}); err != nil {
			return err
		}
		path := SwipePath(x1, y1, x2, y2, d)
		step := d / time.Duration(len(path))
		for _, p := range path {
			time.Sleep(step)
			if err := touch(ctx, input.TouchMove, []*input.TouchPoint{touchPoint(0, p.X, p.Y)}); err != nil {
				return err
			}
		}
		return touch(ctx, input.TouchEnd, []*input.TouchPoint{})
	})
}

// MultiTouch holds every point for its duration, overlapping as scheduled.
func (b *Browser) MultiTouch(_ context.Context, points []game.TouchPoint) bool {
	if len(points) == 0 {
		return true
	}
	events := timeline(points)
	total := events[len(events)-1].At

	return b.gesture("multi_touch", total, func(ctx context.Context) error {
		active := make(map[int]bool, len(points))
		var elapsed time.Duration
		for _, ev := range events {
			if ev.At > elapsed {
				time.Sleep(ev.At - elapsed)
				elapsed = ev.At
			}

			kind := input.TouchStart
			if ev.Kind == touchDown {
				active[ev.Index] = true
			} else {
				delete(active, ev.Index)
				kind = input.TouchEnd
			}

			current := make([]*input.TouchPoint, 0, len(active))
			for i := range points {
				if active[i] {
					current = append(current, touchPoint(i, points[i].X, points[i].Y))
				}
			}
			if err := touch(ctx, kind, current); err != nil {
				return err
			}
		}
		return nil
	})
}

// Cookies reads every cookie from the tab.
func (b *Browser) Cookies() ([]config.CookieData, error) {
	tab := b.tab()
	if tab == nil {
		return nil, fmt.Errorf("browser: not running")
	}

	var cookies []*network.Cookie
	err := chromedp.Run(tab, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("browser: get cookies: %w", err)
	}

	out := make([]config.CookieData, len(cookies))
	for i, c := range cookies {
		out[i] = config.CookieData{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		}
	}
	b.logger.Info("retrieved cookies", "count", len(out))
	return out, nil
}

// SetCookies installs cookies in the tab. Individual failures are logged
// and skipped.
func (b *Browser) SetCookies(cookies []config.CookieData) error {
	if len(cookies) == 0 {
		return nil
	}
	tab := b.tab()
	if tab == nil {
		return fmt.Errorf("browser: not running")
	}

	err := chromedp.Run(tab, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			params := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure)
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				params = params.WithExpires(&expires)
			}
			if c.SameSite != "" {
				params = params.WithSameSite(network.CookieSameSite(c.SameSite))
			}
			if err := params.Do(ctx); err != nil {
				b.logger.Warn("failed to set cookie", "name", c.Name, "err", err)
			}
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("browser: set cookies: %w", err)
	}
	b.logger.Info("set cookies", "count", len(cookies))
	return nil
}

// Close shuts the tab and the browser process.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.ctx, b.cancel = nil, nil
	b.allocCtx, b.allocCancel = nil, nil
	b.logger.Info("browser closed")
}
