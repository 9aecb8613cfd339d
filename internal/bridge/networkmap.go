package bridge

import (
	"context"
	"fmt"

	"github.com/nerrad567/zigbee-mesh-core/internal/render"
)

// RefreshMap requests a graphviz network map from the bridge, waits for the
// graph description, renders it and caches the image. An empty engine
// selects the configured default.
//
// The waiter is registered before the request is published, so a fast reply
// cannot slip past the correlation window.
func (b *Bridge) RefreshMap(ctx context.Context, engine string) ([]byte, error) {
	if b.renderer == nil {
		return nil, render.ErrUnavailable
	}

	pending := b.bus.Expect(EventBridgeNetworkGraph)
	if err := b.publish(b.topics.NetworkMapRequest(), []byte("graphviz")); err != nil {
		pending.cancel()
		return nil, err
	}

	values, err := pending.Wait(ctx, b.networkMapTimeout)
	if err != nil {
		return nil, fmt.Errorf("network map request: %w", err)
	}

	graph, ok := values[0].(string)
	if !ok || graph == "" {
		return nil, fmt.Errorf("network map request: empty graph description")
	}

	opts := b.renderOpts
	if engine != "" {
		opts.Engine = engine
	}

	image, err := b.renderer.Render(ctx, graph, opts)
	if err != nil {
		return nil, fmt.Errorf("render network map: %w", err)
	}

	b.mapMu.Lock()
	b.lastMap = image
	b.mapMu.Unlock()

	b.logger.Info("network map refreshed", "engine", opts.Engine, "bytes", len(image))
	return image, nil
}

// LastMap returns the most recently rendered network map image, or nil if
// no map has been rendered yet.
func (b *Bridge) LastMap() []byte {
	b.mapMu.RLock()
	defer b.mapMu.RUnlock()
	if b.lastMap == nil {
		return nil
	}
	out := make([]byte, len(b.lastMap))
	copy(out, b.lastMap)
	return out
}

// GetDevices returns the device list. Cached entries are served directly
// unless forceRefresh is set or the cache has never been populated; in
// those cases a refresh is requested and awaited. On timeout the cached
// list is returned alongside the error so callers can degrade gracefully.
func (b *Bridge) GetDevices(ctx context.Context, forceRefresh bool) ([]Device, error) {
	if b.cache.HasDevices() && !forceRefresh {
		return b.cache.Devices(), nil
	}

	pending := b.bus.Expect(EventBridgeGroups, EventBridgeDevices)
	if err := b.RefreshDevices(); err != nil {
		pending.cancel()
		return b.cache.Devices(), err
	}

	if _, err := pending.Wait(ctx, b.refreshTimeout); err != nil {
		return b.cache.Devices(), fmt.Errorf("device refresh: %w", err)
	}

	return b.cache.Devices(), nil
}

// GetDevicesWithGroups behaves like GetDevices but also returns the group
// list from the same refresh cycle.
func (b *Bridge) GetDevicesWithGroups(ctx context.Context, forceRefresh bool) ([]Device, []Group, error) {
	if b.cache.HasDevices() && !forceRefresh {
		return b.cache.Devices(), b.cache.Groups(), nil
	}

	pending := b.bus.Expect(EventBridgeGroups, EventBridgeDevices)
	if err := b.RefreshDevices(); err != nil {
		pending.cancel()
		return b.cache.Devices(), b.cache.Groups(), err
	}

	if _, err := pending.Wait(ctx, b.refreshTimeout); err != nil {
		return b.cache.Devices(), b.cache.Groups(), fmt.Errorf("device refresh: %w", err)
	}

	return b.cache.Devices(), b.cache.Groups(), nil
}
