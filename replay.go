// Package main - replay.go
//
// Replay mode for offline pipeline debugging.
// Loads a screenshot, runs inference, decode and decide once, prints the
// decoded state and chosen actions, and writes an annotated copy.
//
// Usage:
//  1. Save a screenshot as PNG
//  2. Run: gamepilot replay shot.png --out result.png
//  3. Check result.png: enemy boxes (red aggressive, yellow passive), player
//     cross (cyan), aimed skill targets (magenta), health and mana bars
//  4. Check the log for timings
package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	xdraw "golang.org/x/image/draw"

	"gamepilot/internal/botlog"
	"gamepilot/internal/config"
	"gamepilot/internal/decoder"
	"gamepilot/internal/game"
	"gamepilot/internal/inference"
	"gamepilot/internal/policy"
)

var (
	colorAggressive = color.RGBA{R: 179, G: 23, B: 23, A: 255}
	colorPassive    = color.RGBA{R: 234, G: 234, B: 149, A: 255}
	colorPlayer     = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	colorTarget     = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	colorHealth     = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	colorMana       = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	colorFrame      = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// ReplayOptions configures one offline replay.
type ReplayOptions struct {
	ModelPath string
	RemoteURL string
	// Screen size the decoded positions refer to. Zero means the image size.
	ScreenWidth  int
	ScreenHeight int
	Run          config.RunConfig
	Seed         int64
	// Out is the annotated PNG path. Empty skips writing it.
	Out string
}

// ReplayResult is what one pass through the pipeline produced.
type ReplayResult struct {
	Backend   string
	State     game.GameState
	Actions   []game.Action
	Inference time.Duration
}

// Replay runs the image at inPath through inference, decode and decide.
func Replay(ctx context.Context, inPath string, opts ReplayOptions) (ReplayResult, error) {
	img, err := loadPNG(inPath)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("load %s: %w", inPath, err)
	}
	botlog.Info("Image loaded: %dx%d", img.Bounds().Dx(), img.Bounds().Dy())

	frame := game.NewFrame(img, opts.ScreenWidth, opts.ScreenHeight, time.Now(), 1)

	sched := inference.NewScheduler(inference.SelectBackend(inference.Options{
		ModelPath: opts.ModelPath,
		RemoteURL: opts.RemoteURL,
	}), botlog.Logger())
	if err := sched.Init(ctx); err != nil {
		return ReplayResult{}, err
	}
	defer sched.Release()

	lap := stopwatch(botlog.Logger(), "replay inference")
	vec, err := sched.Infer(ctx, frame)
	if err != nil {
		return ReplayResult{}, err
	}
	took := lap()

	state := decoder.DecodeFrame(vec, frame)

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p := policy.New(policy.Config{Rand: rand.New(rand.NewSource(seed)), Logger: botlog.Logger()})
	actions := p.Decide(&state, opts.Run.Clamp())

	if opts.Out != "" {
		result := drawReplay(img, &state, actions)
		if err := savePNG(opts.Out, result); err != nil {
			return ReplayResult{}, fmt.Errorf("save %s: %w", opts.Out, err)
		}
		botlog.Info("Saved visualization to %s", opts.Out)
	}

	return ReplayResult{
		Backend:   sched.Backend(),
		State:     state,
		Actions:   actions,
		Inference: took,
	}, nil
}

// writeReplay prints a human-readable summary of r.
func writeReplay(w io.Writer, r ReplayResult) {
	fmt.Fprintf(w, "Backend:   %s (%v)\n", r.Backend, r.Inference.Round(time.Microsecond))
	fmt.Fprintf(w, "Screen:    %s\n", r.State.Screen)
	if p := r.State.Player; p != nil {
		fmt.Fprintf(w, "Player:    hp %.0f%% mp %.0f%% at %s\n", p.Health, p.Mana, p.Position)
	} else {
		fmt.Fprintln(w, "Player:    -")
	}
	fmt.Fprintf(w, "Enemies:   %d\n", len(r.State.Enemies))
	for i, e := range r.State.Enemies {
		kind := "passive"
		if e.Aggressive {
			kind = "aggressive"
		}
		fmt.Fprintf(w, "  #%d %s at %s dist %.2f conf %.2f\n", i+1, kind, e.Position, e.Distance, e.Confidence)
	}
	ready := 0
	for _, s := range r.State.Skills {
		if s.Ready {
			ready++
		}
	}
	fmt.Fprintf(w, "Skills:    %d/%d ready\n", ready, len(r.State.Skills))
	fmt.Fprintf(w, "Actions:   %s\n", game.Describe(r.Actions))
}

// loadPNG loads a PNG image from file
func loadPNG(filename string) (*image.RGBA, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(rgba, rgba.Bounds(), img, bounds.Min, xdraw.Src)
	return rgba, nil
}

// savePNG saves an image to PNG file
func savePNG(filename string, img image.Image) error {
	dir := filepath.Dir(filename)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// drawReplay returns a copy of img with the decoded state and aimed
// actions drawn on it. State positions are in screen coordinates and are
// mapped onto the image.
func drawReplay(img *image.RGBA, state *game.GameState, actions []game.Action) *image.RGBA {
	bounds := img.Bounds()
	result := image.NewRGBA(bounds)
	xdraw.Draw(result, bounds, img, bounds.Min, xdraw.Src)

	toImage := func(p game.Point) image.Point {
		x, y := p.X, p.Y
		if state.ScreenWidth > 0 && state.ScreenHeight > 0 {
			x = p.X * bounds.Dx() / state.ScreenWidth
			y = p.Y * bounds.Dy() / state.ScreenHeight
		}
		return image.Pt(bounds.Min.X+x, bounds.Min.Y+y)
	}

	half := max(bounds.Dx()/30, 3)
	for _, e := range state.Enemies {
		c := toImage(e.Position)
		col := colorPassive
		if e.Aggressive {
			col = colorAggressive
		}
		drawRect(result, image.Rect(c.X-half, c.Y-half, c.X+half, c.Y+half), col, 2)
	}

	if p := state.Player; p != nil {
		drawCross(result, toImage(p.Position), half, colorPlayer)

		barW, barH := max(bounds.Dx()/5, 20), max(bounds.Dy()/100, 4)
		origin := bounds.Min.Add(image.Pt(10, 10))
		drawBar(result, image.Rectangle{Min: origin, Max: origin.Add(image.Pt(barW, barH))}, p.Health/100, colorHealth)
		origin = origin.Add(image.Pt(0, barH+4))
		drawBar(result, image.Rectangle{Min: origin, Max: origin.Add(image.Pt(barW, barH))}, p.Mana/100, colorMana)
	}

	for _, t := range aimedTargets(actions) {
		c := toImage(t)
		drawRect(result, image.Rect(c.X-half/2, c.Y-half/2, c.X+half/2, c.Y+half/2), colorTarget, 2)
	}

	return result
}

// aimedTargets collects the targets of aimed skills, descending into
// composites.
func aimedTargets(actions []game.Action) []game.Point {
	var out []game.Point
	for _, a := range actions {
		switch a := a.(type) {
		case game.UseSkill:
			if a.Target != nil {
				out = append(out, *a.Target)
			}
		case game.Composite:
			out = append(out, aimedTargets(a.Actions)...)
		}
	}
	return out
}

func fill(img *image.RGBA, r image.Rectangle, col color.RGBA) {
	xdraw.Draw(img, r.Intersect(img.Bounds()), &image.Uniform{C: col}, image.Point{}, xdraw.Over)
}

// drawRect draws a rectangle outline
func drawRect(img *image.RGBA, r image.Rectangle, col color.RGBA, thickness int) {
	fill(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness), col)
	fill(img, image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y), col)
	fill(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y), col)
	fill(img, image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y), col)
}

func drawCross(img *image.RGBA, c image.Point, size int, col color.RGBA) {
	fill(img, image.Rect(c.X-size, c.Y-1, c.X+size, c.Y+1), col)
	fill(img, image.Rect(c.X-1, c.Y-size, c.X+1, c.Y+size), col)
}

// drawBar draws an outlined bar filled to fraction (0-1).
func drawBar(img *image.RGBA, r image.Rectangle, fraction float64, col color.RGBA) {
	fraction = min(max(fraction, 0), 1)
	filled := r
	filled.Max.X = r.Min.X + int(float64(r.Dx())*fraction)
	fill(img, filled, col)
	drawRect(img, r, colorFrame, 1)
}

var replayFlags struct {
	out    string
	width  int
	height int
}

var replayCmd = &cobra.Command{
	Use:   "replay <png>",
	Short: "Run one screenshot through the pipeline offline",
	Long: `Run inference, decode and decide on a single screenshot without a
browser or input surface. The model, remote endpoint and run config come
from the configuration file.

Examples:
  gamepilot replay shot.png
  gamepilot replay shot.png --out debug/result.png --width 1080 --height 1920`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data := loadConfig()
		modelPath, err := config.ExpandPath(data.Model.Path)
		if err != nil {
			return err
		}
		res, err := Replay(cmd.Context(), args[0], ReplayOptions{
			ModelPath:    modelPath,
			RemoteURL:    data.Model.RemoteURL,
			ScreenWidth:  replayFlags.width,
			ScreenHeight: replayFlags.height,
			Run:          data.Run,
			Seed:         flagSeed,
			Out:          replayFlags.out,
		})
		if err != nil {
			return err
		}
		writeReplay(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayFlags.out, "out", "result.png", "Annotated output PNG (empty to skip)")
	replayCmd.Flags().IntVar(&replayFlags.width, "width", 0, "Screen width the image was taken at (0 = image width)")
	replayCmd.Flags().IntVar(&replayFlags.height, "height", 0, "Screen height the image was taken at (0 = image height)")
}
