package heartbeat

import (
	"bytes"
	"context"
	"net"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"time"
)

// detectPrimaryIP finds this host's outbound-facing IP, following the
// original's SystemService.detect_primary_ip fallback chain: Go's own
// interface enumeration (the idiomatic analogue of the original's psutil
// pass), then `ip route get 1`, then macOS's `route -n get default` plus
// ifconfig/ipconfig, then "0.0.0.0" (spec §4.5 step 1).
func detectPrimaryIP(ctx context.Context) string {
	if ip := fromInterfaces(); ip != "" {
		return ip
	}
	if ip := fromIPRoute(ctx); ip != "" {
		return ip
	}
	if runtime.GOOS == "darwin" {
		if ip := fromMacRoute(ctx); ip != "" {
			return ip
		}
	}
	return "0.0.0.0"
}

// fromInterfaces picks the first non-loopback IPv4 address on an interface
// that is up, skipping loopback and link-local addresses. Interfaces are
// not filtered by name.
func fromInterfaces() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
				continue
			}
			return ip4.String()
		}
	}
	return ""
}

var ipRouteSrcRe = regexp.MustCompile(`src\s+(\S+)`)

func fromIPRoute(ctx context.Context) string {
	out, err := runCommand(ctx, "ip", "route", "get", "1")
	if err != nil {
		return ""
	}
	m := ipRouteSrcRe.FindStringSubmatch(out)
	if len(m) == 2 {
		return m[1]
	}
	return ""
}

var macRouteInterfaceRe = regexp.MustCompile(`interface:\s+(\S+)`)

func fromMacRoute(ctx context.Context) string {
	out, err := runCommand(ctx, "route", "-n", "get", "default")
	if err != nil {
		return ""
	}
	m := macRouteInterfaceRe.FindStringSubmatch(out)
	if len(m) != 2 {
		return ""
	}
	iface := m[1]

	if out, err := runCommand(ctx, "ipconfig", "getifaddr", iface); err == nil {
		if ip := strings.TrimSpace(out); ip != "" {
			return ip
		}
	}
	if out, err := runCommand(ctx, "ifconfig", iface); err == nil {
		inetRe := regexp.MustCompile(`inet\s+(\S+)`)
		if m := inetRe.FindStringSubmatch(out); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	cmd := exec.CommandContext(cctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return out.String(), nil
}
