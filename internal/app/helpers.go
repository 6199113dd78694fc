// internal/app/helpers.go
package app

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// NormalizeViewerAddr returns the listen address and a browser URL for it.
// An empty host listens on all interfaces but is browsed via loopback.
func NormalizeViewerAddr(cfgAddr string) (listenAddr string, url string) {
	a := strings.TrimSpace(cfgAddr)
	if a == "" {
		a = ":3000"
	}
	listenAddr = a

	host, port, err := net.SplitHostPort(a)
	if err != nil {
		return listenAddr, "http://" + a
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return listenAddr, "http://" + net.JoinHostPort(host, port)
}

func WaitTCP(addr string, timeout time.Duration) error {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = c.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for %s", addr)
}

func logBanner(cfgPath, url string) {
	log.Info("────────────────────────────────────────")
	log.Info("AVP lesson creator")
	log.Infof(" Config file : %s", cfgPath)
	log.Infof(" Creator URL : %s", url)
	log.Info("────────────────────────────────────────")
}
