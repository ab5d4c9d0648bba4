package platform

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamepilot/internal/game"
)

func TestTimelineOrdersEvents(t *testing.T) {
	events := timeline([]game.TouchPoint{
		{X: 1, Y: 1, Start: 50 * time.Millisecond, Duration: 100 * time.Millisecond},
		{X: 2, Y: 2, Start: 0, Duration: 50 * time.Millisecond},
		{X: 3, Y: 3, Start: 200 * time.Millisecond, Duration: 0},
	})

	require.Len(t, events, 6)
	assert.Equal(t, touchEvent{At: 0, Kind: touchDown, Index: 1}, events[0])
	// point 0 goes down at 50ms before point 1 lifts
	assert.Equal(t, touchEvent{At: 50 * time.Millisecond, Kind: touchDown, Index: 0}, events[1])
	assert.Equal(t, touchEvent{At: 50 * time.Millisecond, Kind: touchUp, Index: 1}, events[2])
	assert.Equal(t, touchEvent{At: 150 * time.Millisecond, Kind: touchUp, Index: 0}, events[3])
	assert.Equal(t, touchEvent{At: 200 * time.Millisecond, Kind: touchDown, Index: 2}, events[4])
	assert.Equal(t, touchEvent{At: 200 * time.Millisecond, Kind: touchUp, Index: 2}, events[5])
}

func TestSwipePath(t *testing.T) {
	path := SwipePath(100, 100, 200, 50, 64*time.Millisecond)
	require.Len(t, path, 4)
	assert.Equal(t, game.NewPoint(125, 87), path[0])
	assert.Equal(t, game.NewPoint(200, 50), path[3])

	short := SwipePath(0, 0, 10, 10, time.Millisecond)
	assert.Equal(t, []game.Point{game.NewPoint(10, 10)}, short)
}

func TestToRGBA(t *testing.T) {
	gray := image.NewGray(image.Rect(5, 5, 15, 25))
	rgba := toRGBA(gray)
	assert.Equal(t, image.Rect(0, 0, 10, 20), rgba.Bounds())

	same := image.NewRGBA(image.Rect(0, 0, 2, 2))
	assert.Same(t, same, toRGBA(same))
}

func TestClosedBrowserIsUnavailable(t *testing.T) {
	b := NewBrowser(BrowserConfig{URL: "about:blank"})
	_, err := b.Capture(t.Context(), 0.5)
	assert.Error(t, err)
	assert.False(t, b.Tap(t.Context(), 1, 1, time.Millisecond))
	_, err = b.Cookies()
	assert.Error(t, err)
	b.Close()
}
