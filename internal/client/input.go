package client

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/hajimehoshi/ebiten/v2"
)

// ControlScheme 按键方案
type ControlScheme int

const (
	ControlWASD  ControlScheme = iota // WASD
	ControlArrow                      // 方向键
)

func (c ControlScheme) String() string {
	switch c {
	case ControlWASD:
		return "WASD"
	case ControlArrow:
		return "方向键"
	}
	return "未知"
}

// KeyboardInput 键盘输入源，Sample 必须在 ebiten 的 Update 里调用
// 前进/后退为 Y 轴，右转为正 X
type KeyboardInput struct {
	Scheme ControlScheme
}

func (k *KeyboardInput) Sample() mgl32.Vec2 {
	up, down, left, right := k.keys()
	var move mgl32.Vec2
	if up {
		move[1]++
	}
	if down {
		move[1]--
	}
	if right {
		move[0]++
	}
	if left {
		move[0]--
	}
	return move
}

func (k *KeyboardInput) keys() (up, down, left, right bool) {
	if k.Scheme == ControlArrow {
		return ebiten.IsKeyPressed(ebiten.KeyArrowUp),
			ebiten.IsKeyPressed(ebiten.KeyArrowDown),
			ebiten.IsKeyPressed(ebiten.KeyArrowLeft),
			ebiten.IsKeyPressed(ebiten.KeyArrowRight)
	}
	return ebiten.IsKeyPressed(ebiten.KeyW),
		ebiten.IsKeyPressed(ebiten.KeyS),
		ebiten.IsKeyPressed(ebiten.KeyA),
		ebiten.IsKeyPressed(ebiten.KeyD)
}

type keyTracker struct {
	prev map[ebiten.Key]bool
}

func (k *keyTracker) JustPressed(key ebiten.Key) bool {
	if k.prev == nil {
		k.prev = make(map[ebiten.Key]bool)
	}
	now := ebiten.IsKeyPressed(key)
	prev := k.prev[key]
	k.prev[key] = now
	return now && !prev
}
