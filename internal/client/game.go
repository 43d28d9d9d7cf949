package client

import (
	"fmt"
	"image/color"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font/basicfont"

	"kartnet/pkg/core"
	"kartnet/pkg/logger"
)

const (
	ScreenWidth  = 960
	ScreenHeight = 640

	kartRadius = 3.0 // 世界单位
)

var (
	hudFont = text.NewGoXFace(basicfont.Face7x13)

	backgroundColor = color.RGBA{18, 22, 30, 255}
	trackColor      = color.RGBA{90, 96, 110, 255}
	waypointColor   = color.RGBA{200, 200, 80, 255}
	localColor      = color.RGBA{80, 200, 255, 255}
	remoteColor     = color.RGBA{255, 120, 80, 255}
	ghostColor      = color.RGBA{255, 255, 255, 90}
)

// camera 把 XZ 平面映射到屏幕，Z 轴朝上
type camera struct {
	scale   float32
	centerX float32
	centerZ float32
}

func newCamera(track *core.Track) camera {
	minB, maxB := track.Bounds[0], track.Bounds[1]
	w, h := maxB[0]-minB[0], maxB[1]-minB[1]
	scale := float32(ScreenWidth) / w
	if s := float32(ScreenHeight) / h; s < scale {
		scale = s
	}
	return camera{
		scale:   scale,
		centerX: (minB[0] + maxB[0]) / 2,
		centerZ: (minB[1] + maxB[1]) / 2,
	}
}

func (c camera) project(p mgl32.Vec3) (float32, float32) {
	return ScreenWidth/2 + (p[0]-c.centerX)*c.scale,
		ScreenHeight/2 - (p[2]-c.centerZ)*c.scale
}

// Game ebiten 游戏循环：Update 推进预测，Draw 画赛道、车辆和调试信息
type Game struct {
	racer      *Racer
	camera     camera
	lastUpdate time.Time
	keys       keyTracker
	showHUD    bool
	showGhost  bool
	err        error
}

func NewGame(racer *Racer) *Game {
	return &Game{
		racer:      racer,
		camera:     newCamera(racer.Track()),
		lastUpdate: time.Now(),
		showHUD:    true,
	}
}

// Update 每帧用真实经过的时间推进固定步长模拟
func (g *Game) Update() error {
	if g.keys.JustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if g.keys.JustPressed(ebiten.KeyF1) {
		g.showHUD = !g.showHUD
	}
	if g.keys.JustPressed(ebiten.KeyF2) {
		g.showGhost = !g.showGhost
	}

	select {
	case err := <-g.racer.Network().Errors():
		g.err = err
		logger.Log.Errorf("连接断开: %v", err)
	default:
	}

	now := time.Now()
	g.racer.Advance(now.Sub(g.lastUpdate))
	g.lastUpdate = now

	for {
		id, ok := g.racer.Network().ReceivePlayerLeave()
		if !ok {
			break
		}
		logger.Log.WithField("player", id).Info("玩家离开")
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(backgroundColor)
	g.drawTrack(screen)

	for _, remote := range g.racer.Network().Remotes().Sample(time.Now().UnixMilli()) {
		g.drawKart(screen, remote.Pose, remoteColor)
	}

	// 最近一次确认的权威状态，用来观察预测误差
	if g.showGhost {
		if auth, ok := g.racer.Predictor().Predicted(g.lastAcknowledged()); ok {
			g.drawKart(screen, auth.Pose(), ghostColor)
		}
	}
	g.drawKart(screen, g.racer.Kart().GetPose(), localColor)

	if g.showHUD {
		g.drawHUD(screen)
	}
}

func (g *Game) lastAcknowledged() core.Tick {
	tick, _ := g.racer.Predictor().Reconciler().LastProcessed()
	return tick
}

func (g *Game) drawTrack(screen *ebiten.Image) {
	track := g.racer.Track()
	for i, wp := range track.Waypoints {
		x0, y0 := g.camera.project(wp)
		x1, y1 := g.camera.project(track.Waypoints[track.Next(i)])
		vector.StrokeLine(screen, x0, y0, x1, y1, 12*g.camera.scale, trackColor, true)
	}
	for _, wp := range track.Waypoints {
		x, y := g.camera.project(wp)
		vector.FillCircle(screen, x, y, 2, waypointColor, true)
	}
}

func (g *Game) drawKart(screen *ebiten.Image, pose core.Pose, clr color.Color) {
	x, y := g.camera.project(pose.Position)
	r := kartRadius * g.camera.scale
	vector.FillCircle(screen, x, y, r, clr, true)

	nose := pose.Position.Add(pose.Forward().Mul(kartRadius * 2))
	nx, ny := g.camera.project(nose)
	vector.StrokeLine(screen, x, y, nx, ny, 2, clr, true)
}

func (g *Game) drawHUD(screen *ebiten.Image) {
	stats := g.racer.Stats()
	netStats := g.racer.Network().Stats()

	lines := []string{
		fmt.Sprintf("player %d  tick %d  %d TPS", g.racer.Network().PlayerID(), g.racer.Predictor().CurrentTick(), g.racer.TickRate()),
		fmt.Sprintf("rtt %dms  state rtt %.0fms", netStats.RTT.Milliseconds(), stats.LastRoundTrip),
		fmt.Sprintf("reconcile %s  corrected %d  accepted %d  err %.2f", stats.State, stats.Reconcile.Corrected, stats.Reconcile.Accepted, stats.Reconcile.LastError),
		fmt.Sprintf("replayed %d  dropped ticks %d  batches dropped %d", stats.Reconcile.ReplayedTicks, stats.DroppedTicks, netStats.BatchesDropped),
		fmt.Sprintf("remotes %d  F1 hud  F2 ghost  ESC quit", g.racer.Network().Remotes().Len()),
	}
	if g.err != nil {
		lines = append(lines, "disconnected: "+g.err.Error())
	}

	for i, line := range lines {
		options := &text.DrawOptions{}
		options.GeoM.Translate(10, float64(10+i*16))
		options.ColorScale.ScaleWithColor(color.White)
		text.Draw(screen, line, hudFont, options)
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return ScreenWidth, ScreenHeight
}
