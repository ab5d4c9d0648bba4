package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"gamepilot/internal/game"
)

const overlayTimeout = 2 * time.Second

// OverlayID is the DOM id of the debug canvas.
const OverlayID = "gamepilot-debug-overlay"

// Overlay is what the debug layer shows on top of the page: the decoded
// state in viewport coordinates, aimed targets, and a text panel.
type Overlay struct {
	Player  *game.PlayerState
	Enemies []game.EnemyInfo
	Targets []game.Point
	Lines   []string
	Log     []string
}

// DrawOverlay replaces the debug canvas on the page with o. The canvas is
// non-interactive so gestures reach the game underneath.
func (b *Browser) DrawOverlay(ctx context.Context, o Overlay) error {
	tab := b.tab()
	if tab == nil {
		return nil
	}
	js, err := overlayScript(o)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(tab, overlayTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, nil)); err != nil {
		return fmt.Errorf("browser: draw overlay: %w", err)
	}
	return nil
}

// ClearOverlay removes the debug canvas.
func (b *Browser) ClearOverlay(ctx context.Context) error {
	tab := b.tab()
	if tab == nil {
		return nil
	}
	runCtx, cancel := context.WithTimeout(tab, overlayTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	js := fmt.Sprintf(`(function(){ const o = document.getElementById(%q); if (o) o.remove(); })();`, OverlayID)
	return chromedp.Run(runCtx, chromedp.Evaluate(js, nil))
}

type overlayBox struct {
	X          int  `json:"x"`
	Y          int  `json:"y"`
	Aggressive bool `json:"aggressive"`
}

type overlayData struct {
	Player  *game.Point  `json:"player"`
	Health  float64      `json:"health"`
	Mana    float64      `json:"mana"`
	Enemies []overlayBox `json:"enemies"`
	Targets []game.Point `json:"targets"`
	Lines   []string     `json:"lines"`
	Log     []string     `json:"log"`
}

// overlayScript builds the page script for o. All data crosses into the page
// as one JSON literal so log text cannot break out of the script.
func overlayScript(o Overlay) (string, error) {
	d := overlayData{
		Enemies: make([]overlayBox, 0, len(o.Enemies)),
		Targets: o.Targets,
		Lines:   o.Lines,
		Log:     o.Log,
	}
	if d.Targets == nil {
		d.Targets = []game.Point{}
	}
	if d.Lines == nil {
		d.Lines = []string{}
	}
	if d.Log == nil {
		d.Log = []string{}
	}
	if p := o.Player; p != nil {
		pos := p.Position
		d.Player = &pos
		d.Health, d.Mana = p.Health, p.Mana
	}
	for _, e := range o.Enemies {
		d.Enemies = append(d.Enemies, overlayBox{X: e.Position.X, Y: e.Position.Y, Aggressive: e.Aggressive})
	}

	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("browser: encode overlay: %w", err)
	}

	var js strings.Builder
	js.WriteString("(function(d) {\n")
	fmt.Fprintf(&js, "\tconst id = %q;\n", OverlayID)
	js.WriteString(`	let overlay = document.getElementById(id);
	if (overlay) overlay.remove();
	overlay = document.createElement('canvas');
	overlay.id = id;
	overlay.style.position = 'fixed';
	overlay.style.left = '0px';
	overlay.style.top = '0px';
	overlay.style.pointerEvents = 'none';
	overlay.style.zIndex = '9999';
	overlay.width = window.innerWidth;
	overlay.height = window.innerHeight;
	document.body.appendChild(overlay);

	const ctx = overlay.getContext('2d');
	const half = Math.max(Math.floor(overlay.width / 30), 6);

	// enemies
	ctx.lineWidth = 2;
	for (const e of d.enemies) {
		ctx.strokeStyle = e.aggressive ? 'red' : 'yellow';
		ctx.strokeRect(e.x - half, e.y - half, half * 2, half * 2);
	}

	// player
	if (d.player) {
		ctx.strokeStyle = 'cyan';
		ctx.beginPath();
		ctx.moveTo(d.player.x - half, d.player.y);
		ctx.lineTo(d.player.x + half, d.player.y);
		ctx.moveTo(d.player.x, d.player.y - half);
		ctx.lineTo(d.player.x, d.player.y + half);
		ctx.stroke();
	}

	// aimed skills
	ctx.strokeStyle = 'magenta';
	ctx.setLineDash([5, 3]);
	for (const t of d.targets) {
		ctx.strokeRect(t.x - half / 2, t.y - half / 2, half, half);
	}
	ctx.setLineDash([]);

	// panel
	const lineHeight = 18;
	const rows = d.lines.length + (d.log.length ? d.log.length + 2 : 0) + (d.player ? 2 : 0);
	ctx.fillStyle = 'rgba(0, 0, 0, 0.8)';
	ctx.fillRect(5, 5, 360, rows * lineHeight + 16);
	ctx.font = '14px monospace';
	ctx.textAlign = 'left';
	ctx.textBaseline = 'top';
	let y = 12;
	ctx.fillStyle = 'lime';
	for (const line of d.lines) { ctx.fillText(line, 12, y); y += lineHeight; }
	if (d.player) {
		ctx.fillStyle = 'red';
		ctx.fillText('HP ' + d.health.toFixed(0) + '%', 12, y); y += lineHeight;
		ctx.fillStyle = 'deepskyblue';
		ctx.fillText('MP ' + d.mana.toFixed(0) + '%', 12, y); y += lineHeight;
	}
	if (d.log.length) {
		y += lineHeight;
		ctx.fillStyle = 'white';
		for (const line of d.log) { ctx.fillText(line, 12, y); y += lineHeight; }
	}
`)
	js.WriteString("})(")
	js.Write(data)
	js.WriteString(");\n")
	return js.String(), nil
}
