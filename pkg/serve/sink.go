package serve

import (
	"github.com/ormasoftchile/overlay/pkg/kernel/animate"
	"github.com/ormasoftchile/overlay/pkg/kernel/engine"
	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

// Render notification methods.
const (
	MethodRenderImage   = "render/image"
	MethodRenderCursor  = "render/cursor"
	MethodRenderRipple  = "render/ripple"
	MethodRenderOverlay = "render/overlay"
	MethodRenderClear   = "render/clear"
)

// rpcSink forwards machine notices as notifications named after their
// kind. It only writes, so it is safe under the machine lock.
type rpcSink struct {
	s *Server
}

func (k *rpcSink) Notify(n engine.Notice) {
	k.s.sendEvent(string(n.Kind), n.Data)
}

// ImageParams is the payload of render/image.
type ImageParams struct {
	Environment string `json:"environment"`
	Index       int    `json:"index"`
	Image       string `json:"image,omitempty"`
}

// CursorParams is the payload of render/cursor and render/ripple.
type CursorParams struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Pressed bool    `json:"pressed,omitempty"`
}

// rpcSurface streams scheduler output to the host, which draws it over
// its own window.
type rpcSurface struct {
	s   *Server
	reg *registry.Registry
}

func (r *rpcSurface) ShowImage(env string, index int) {
	r.s.sendEvent(MethodRenderImage, ImageParams{
		Environment: env,
		Index:       index,
		Image:       r.reg.Image(env, index),
	})
}

func (r *rpcSurface) SetCursor(p schema.Point, pressed bool) {
	r.s.sendEvent(MethodRenderCursor, CursorParams{X: p.X, Y: p.Y, Pressed: pressed})
}

func (r *rpcSurface) Ripple(p schema.Point) {
	r.s.sendEvent(MethodRenderRipple, CursorParams{X: p.X, Y: p.Y})
}

func (r *rpcSurface) ShowOverlay(o animate.Overlay) {
	r.s.sendEvent(MethodRenderOverlay, o)
}

func (r *rpcSurface) ClearOverlays() {
	r.s.sendEvent(MethodRenderClear, struct{}{})
}
