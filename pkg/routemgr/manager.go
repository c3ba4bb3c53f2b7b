// Package routemgr installs and removes host-scoped routes pinned to the
// tunnel interface, shelling out to the platform's routing utility with
// idempotent semantics (install/delete are both safe to repeat).
package routemgr

import (
	"context"
	"net"
	"time"

	"github.com/datawire/dlib/dlog"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/DrivasLab/pmacs-utils/pkg/vpnerr"
)

// RouteEntry records one installed host route, owned by the Route
// Manager's view of the snapshot (the actual persisted CleanupSnapshot
// lives in pkg/snapshot; this is the in-memory shape the orchestrator
// copies from).
type RouteEntry struct {
	Destination net.IP
	Via         string // interface name, or a next-hop gateway address
	InstalledAt time.Time
}

// backend is the platform-specific capability set: each OS shells out to
// its own routing utility. This mirrors the teacher's pattern of a
// capability-set interface with one implementation selected at compile
// time via build tags, not runtime inheritance.
type backend interface {
	addRoute(ctx context.Context, dest net.IP, via string, boundToInterface bool) error
	deleteRoute(ctx context.Context, dest net.IP) error
	resolveInterfaceIndex(ctx context.Context, name string) (string, bool)
}

// Manager installs/removes host routes bound to a single tunnel
// interface (or, if interface binding fails to resolve, a next-hop
// gateway) for the lifetime of a session.
type Manager struct {
	b          backend
	iface      string
	ifaceIndex string
	ifaceOK    bool
	installed  map[string]RouteEntry
}

// New creates a Route Manager for the current platform.
func New() *Manager {
	return &Manager{b: newPlatformBackend(), installed: make(map[string]RouteEntry)}
}

// BindToInterface scopes subsequent AddHostRoute calls to the named
// interface. On platforms where interface-scoped routes are expressed by
// index rather than name (Windows), the name->index mapping is resolved
// here; if resolution fails, the manager degrades to next-hop routing via
// the supplied gateway address passed to AddHostRoute and the caller
// should treat this as a warning, not a fatal error.
func (m *Manager) BindToInterface(ctx context.Context, name string) {
	m.iface = name
	if idx, ok := m.b.resolveInterfaceIndex(ctx, name); ok {
		m.ifaceIndex = idx
		m.ifaceOK = true
	} else {
		m.ifaceIndex = ""
		m.ifaceOK = false
		dlog.Warnf(ctx, "routemgr: could not resolve interface %q, falling back to next-hop routing", name)
	}
}

// AddHostRoute installs a /32 route for dest. via is used as the next-hop
// gateway only if interface binding was not established or did not
// resolve. "Already exists" is treated as success.
func (m *Manager) AddHostRoute(ctx context.Context, dest net.IP, via string) error {
	bound := m.iface != "" && m.ifaceOK
	target := via
	if bound {
		target = m.ifaceIndex
	}
	if err := m.b.addRoute(ctx, dest, target, bound); err != nil {
		return vpnerr.RouteInstall.Newf("routemgr: add route %s via %s: %w", dest, target, err)
	}
	m.installed[dest.String()] = RouteEntry{Destination: dest, Via: target, InstalledAt: time.Now()}
	return nil
}

// DeleteRoute removes the /32 route for dest. "No such route" is treated
// as success so teardown is idempotent.
func (m *Manager) DeleteRoute(ctx context.Context, dest net.IP) error {
	if err := m.b.deleteRoute(ctx, dest); err != nil {
		return vpnerr.RouteInstall.Newf("routemgr: delete route %s: %w", dest, err)
	}
	delete(m.installed, dest.String())
	return nil
}

// BatchResult reports what happened to each destination in a batch
// install, so the caller can decide whether the session is still usable
// with partial coverage. Err aggregates every failure in Failed into a
// single error, for callers that just want to log or wrap the whole batch.
type BatchResult struct {
	Installed []net.IP
	Failed    map[string]error
	Err       error
}

// AddHostRoutes installs routes for every destination in dests. A failure
// for one destination never aborts the batch: each failure is logged and
// recorded in the returned BatchResult, matching the non-fatal per-host
// RouteInstall policy.
func (m *Manager) AddHostRoutes(ctx context.Context, dests []net.IP, via string) BatchResult {
	res := BatchResult{Failed: make(map[string]error)}
	var errs *multierror.Error
	for _, d := range dests {
		if err := m.AddHostRoute(ctx, d, via); err != nil {
			dlog.Errorf(ctx, "routemgr: %v", err)
			res.Failed[d.String()] = err
			errs = multierror.Append(errs, err)
			continue
		}
		res.Installed = append(res.Installed, d)
	}
	res.Err = errs.ErrorOrNil()
	return res
}

// DeleteAll removes every route this Manager has installed, tolerating
// per-destination failures the same way AddHostRoutes does, and is safe
// to call with nothing installed.
func (m *Manager) DeleteAll(ctx context.Context) error {
	var errs *multierror.Error
	for key := range m.installed {
		ip := net.ParseIP(key)
		if ip == nil {
			continue
		}
		if err := m.DeleteRoute(ctx, ip); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// Installed returns a snapshot of currently-tracked route entries, for the
// orchestrator to fold into the persisted CleanupSnapshot.
func (m *Manager) Installed() []RouteEntry {
	out := make([]RouteEntry, 0, len(m.installed))
	for _, e := range m.installed {
		out = append(out, e)
	}
	return out
}
