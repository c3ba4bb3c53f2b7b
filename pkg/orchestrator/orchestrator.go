// Package orchestrator drives the Session Orchestrator from spec.md §4.8:
// it glues the auth handshake into tunnel setup, spawns the forwarding
// loop, installs routes and hosts entries, and reverses all of it on
// teardown. It has two entry points that share every collaborator below
// them (Route Manager, Hosts Overlay, snapshot persistence): Connect
// drives the tunnel itself (native mode) and RunScript plays helper to an
// external VPN process that already owns the tunnel (script mode), per
// spec.md §6 and §9's "native vs script mode" design note.
package orchestrator

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/google/uuid"

	"github.com/DrivasLab/pmacs-utils/pkg/config"
	"github.com/DrivasLab/pmacs-utils/pkg/gpauth"
	"github.com/DrivasLab/pmacs-utils/pkg/hostsoverlay"
	"github.com/DrivasLab/pmacs-utils/pkg/resolver"
	"github.com/DrivasLab/pmacs-utils/pkg/routemgr"
	"github.com/DrivasLab/pmacs-utils/pkg/scriptenv"
	"github.com/DrivasLab/pmacs-utils/pkg/snapshot"
	"github.com/DrivasLab/pmacs-utils/pkg/tunnel"
	"github.com/DrivasLab/pmacs-utils/pkg/vnic"
	"github.com/DrivasLab/pmacs-utils/pkg/vpnerr"
)

// routeSettleDelay is how long the orchestrator waits after the forwarding
// loop starts reading before installing routes, per spec.md §4.8's
// ordering requirement ("routes MUST be installed after the forwarding
// loop starts reading ... yields briefly, >=100ms").
const routeSettleDelay = 150 * time.Millisecond

// CredentialPrompt is the external collaborator that asks the user (or an
// OS keychain) for a username/password/passcode; spec.md §1 places
// credential prompting and keychain storage outside the core.
type CredentialPrompt func(ctx context.Context, p *gpauth.PreloginResult) (username, password, passcode string, err error)

// Deps bundles the external collaborators a native-mode Connect needs.
type Deps struct {
	Prompt              CredentialPrompt
	SnapshotPath        string
	AggressiveKeepalive bool
}

// Connect drives Prelogin -> credential prompt -> Login -> GetConfig ->
// Virtual NIC -> Tunnel Session -> forwarding loop -> Route Manager batch
// install -> Hosts Overlay apply -> snapshot persist, then blocks until
// ctx is cancelled or the forwarding loop exits, and always tears down in
// reverse order before returning.
func Connect(ctx context.Context, gateway string, hosts []string, deps Deps) error {
	sessionID := uuid.NewString()
	dlog.Infof(ctx, "orchestrator: starting session %s for gateway %s", sessionID, gateway)
	client := gpauth.New(gateway)

	pre, err := client.Prelogin(ctx)
	if err != nil {
		return err
	}
	if pre.Kind == gpauth.AuthKindSAML {
		return vpnerr.AuthFailed.New("orchestrator: gateway requires SAML auth, which this tool can only surface, not drive")
	}

	username, password, passcode, err := deps.Prompt(ctx, pre)
	if err != nil {
		return vpnerr.AuthFailed.Newf("orchestrator: credential prompt: %w", err)
	}

	login, err := client.Login(ctx, username, password, passcode)
	if err != nil {
		return err
	}

	cfg, err := client.GetConfig(ctx, login.AuthCookie, nil)
	if err != nil {
		return err
	}

	nic, err := vnic.Create(vnic.Config{
		MTU:     int(cfg.MTU),
		Address: cfg.InternalIP.String() + "/32",
	})
	if err != nil {
		return err
	}
	defer nic.Close()

	session, err := tunnel.Dial(ctx, login.GatewayAddress, nic)
	if err != nil {
		return err
	}
	defer session.Close()
	session.SetAggressiveKeepalive(deps.AggressiveKeepalive)

	if err := session.Handshake(ctx, login.Username, login.AuthCookie); err != nil {
		return err
	}

	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{EnableSignalHandling: true, ShutdownOnNonError: true})
	grp.Go("forward", func(ctx context.Context) error {
		return session.Run(ctx)
	})

	// Give the forwarding loop time to start reading before anything tries
	// to resolve a routed hostname through it.
	select {
	case <-time.After(routeSettleDelay):
	case <-ctx.Done():
	}

	routeMgr := routemgr.New()
	routeMgr.BindToInterface(ctx, nic.Name())

	registerResolvedLink(ctx, nic.Name(), cfg.DNSServers)

	dnsRes := resolver.New(cfg.DNSServers)
	resolved := resolveAndRoute(ctx, routeMgr, dnsRes, nic.Name(), cfg.DNSServers, hosts)

	overlay := hostsoverlay.New()
	if err := overlay.Apply(resolved); err != nil {
		dlog.Errorf(ctx, "orchestrator: hosts overlay apply failed (routes still work by IP): %v", err)
	}

	snap := snapshot.NewFromRoutes(sessionID, nic.Name(), login.GatewayAddress, resolved, pidPtr())
	if err := snapshot.Save(deps.SnapshotPath, snap); err != nil {
		dlog.Errorf(ctx, "orchestrator: snapshot save failed: %v", err)
	}

	runErr := grp.Wait()

	revertResolvedLink(ctx, nic.Name())
	if err := overlay.Revert(); err != nil {
		dlog.Errorf(ctx, "orchestrator: hosts overlay revert failed: %v", err)
	}
	if err := routeMgr.DeleteAll(ctx); err != nil {
		dlog.Errorf(ctx, "orchestrator: route cleanup failed: %v", err)
	}
	if err := snapshot.Delete(deps.SnapshotPath); err != nil {
		dlog.Errorf(ctx, "orchestrator: snapshot delete failed: %v", err)
	}

	if vpnerr.GetKind(runErr) == vpnerr.Cancelled {
		return nil
	}
	return runErr
}

// resolveAndRoute installs routes for the VPN DNS servers first (so that
// subsequent hostname resolution through the tunnel actually works), then
// resolves and routes each configured hostname, skipping (logging, not
// aborting) any that fail to resolve or route. The returned map feeds both
// the Hosts Overlay and the persisted snapshot, keeping the spec's
// route<->hosts-entry pairing invariant (spec.md §3, §8).
func resolveAndRoute(ctx context.Context, routeMgr *routemgr.Manager, dnsRes *resolver.Resolver, via string, dnsServers []net.IP, hosts []string) map[string]net.IP {
	for _, dns := range dnsServers {
		if err := routeMgr.AddHostRoute(ctx, dns, via); err != nil {
			dlog.Warnf(ctx, "orchestrator: route to DNS server %s: %v", dns, err)
		}
	}

	resolved := make(map[string]net.IP)
	for _, host := range hosts {
		ip, err := dnsRes.Resolve(host)
		if err != nil {
			dlog.Errorf(ctx, "orchestrator: resolve %s: %v", host, err)
			continue
		}
		if err := routeMgr.AddHostRoute(ctx, ip, via); err != nil {
			dlog.Errorf(ctx, "orchestrator: route %s (%s): %v", host, ip, err)
			continue
		}
		resolved[host] = ip
	}
	return resolved
}

func pidPtr() *int {
	pid := os.Getpid()
	return &pid
}

// registerResolvedLink is a best-effort additive step: on Linux, where
// systemd-resolved is managing the host resolver, it registers the
// tunnel's DNS servers against the tunnel interface so ordinary system
// lookups (not just this tool's own stub resolver) are routed through
// the VPN. A failure here is never fatal; the stub resolver in
// pkg/resolver already serves every hostname this tool routes.
func registerResolvedLink(ctx context.Context, ifaceName string, servers []net.IP) {
	if !resolver.IsSystemdResolvedRunning(ctx) {
		return
	}
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		dlog.Warnf(ctx, "orchestrator: resolved registration: %v", err)
		return
	}
	if err := resolver.RegisterLink(ctx, iface.Index, servers); err != nil {
		dlog.Warnf(ctx, "orchestrator: resolved registration failed, continuing with stub resolver only: %v", err)
	}
}

func revertResolvedLink(ctx context.Context, ifaceName string) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return
	}
	if err := resolver.RevertLink(ctx, iface.Index); err != nil {
		dlog.Warnf(ctx, "orchestrator: resolved link revert: %v", err)
	}
}

// RunScript implements the script-mode contract (spec.md §6): it is
// invoked with an environment describing a tunnel another process already
// owns, and only drives the Route Manager / Hosts Overlay / snapshot
// trio — never the Tunnel Session itself.
func RunScript(ctx context.Context, env *scriptenv.Env, cfg *config.Config, snapshotPath string) error {
	switch env.Reason {
	case scriptenv.ReasonPreInit:
		return nil
	case scriptenv.ReasonConnect:
		return scriptConnect(ctx, env, cfg, snapshotPath)
	case scriptenv.ReasonDisconnect:
		return scriptDisconnect(ctx, snapshotPath)
	case scriptenv.ReasonReconnect:
		dlog.Info(ctx, "orchestrator: reconnect, treating as disconnect then connect")
		if err := scriptDisconnect(ctx, snapshotPath); err != nil {
			dlog.Warnf(ctx, "orchestrator: reconnect's disconnect phase: %v", err)
		}
		return scriptConnect(ctx, env, cfg, snapshotPath)
	default:
		return vpnerr.ConfigInvalid.Newf("orchestrator: unhandled reason %q", env.Reason)
	}
}

// scriptConnect routes the VPN's DNS servers, then resolves each configured
// host through them and routes it in turn (skipping hosts that fail), then
// updates the hosts file, then persists state. Unlike the original
// implementation's handle_connect (original_source/src/openconnect/script.rs),
// it does not resolve every host before installing the first route.
func scriptConnect(ctx context.Context, env *scriptenv.Env, cfg *config.Config, snapshotPath string) error {
	dlog.Infof(ctx, "orchestrator: connect via script mode, tunnel=%s gateway=%s", env.TunnelDevice, env.Gateway)

	routeMgr := routemgr.New()
	routeMgr.BindToInterface(ctx, env.TunnelDevice)
	registerResolvedLink(ctx, env.TunnelDevice, env.DNSServers)

	dnsRes := resolver.New(env.DNSServers)
	resolved := resolveAndRoute(ctx, routeMgr, dnsRes, env.TunnelDevice, env.DNSServers, cfg.Hosts)

	if len(resolved) > 0 {
		overlay := hostsoverlay.New()
		if err := overlay.Apply(resolved); err != nil {
			dlog.Warnf(ctx, "orchestrator: hosts overlay apply failed (continuing): %v", err)
		}
	}

	snap := snapshot.NewFromRoutes("", env.TunnelDevice, env.Gateway.String(), resolved, nil)
	if err := snapshot.Save(snapshotPath, snap); err != nil {
		return vpnerr.StatePersist.Newf("orchestrator: save snapshot: %w", err)
	}
	dlog.Infof(ctx, "orchestrator: %d routes active", len(snap.Routes))
	return nil
}

// scriptDisconnect tolerates an absent snapshot (nothing to clean up),
// matching the script-mode "reconnect == disconnect then connect" rule
// where a prior disconnect may never have run.
func scriptDisconnect(ctx context.Context, snapshotPath string) error {
	if !snapshot.Exists(snapshotPath) {
		dlog.Info(ctx, "orchestrator: no snapshot found, nothing to clean up")
		return nil
	}
	snap, err := snapshot.Load(snapshotPath)
	if err != nil {
		return err
	}

	routeMgr := routemgr.New()
	routeMgr.BindToInterface(ctx, snap.TunnelDevice)
	revertResolvedLink(ctx, snap.TunnelDevice)
	for _, r := range snap.Routes {
		ip := net.ParseIP(r.IP)
		if ip == nil {
			continue
		}
		if err := routeMgr.DeleteRoute(ctx, ip); err != nil {
			dlog.Warnf(ctx, "orchestrator: delete route %s: %v", ip, err)
		}
	}

	if len(snap.HostsEntries) > 0 {
		overlay := hostsoverlay.New()
		if err := overlay.Revert(); err != nil {
			dlog.Warnf(ctx, "orchestrator: hosts overlay revert failed: %v", err)
		}
	}

	return snapshot.Delete(snapshotPath)
}
