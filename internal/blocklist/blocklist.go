// Package blocklist implements the trivial line-oriented blocklist loader
// spec.md treats as an external collaborator: one hostname or IPv4
// literal per line, resolved eagerly at load time to a set of blocked
// IPv4 addresses.
package blocklist

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"strings"

	"golang.org/x/net/idna"

	"github.com/rs/zerolog/log"
)

// Blocklist is a resolved set of blocked IPv4 addresses.
type Blocklist struct {
	ips map[string]struct{}
}

// Load reads path, one hostname or IPv4 literal per line, resolving each
// eagerly. Lines that fail to resolve are logged as warnings and skipped,
// matching the original's "could not convert to an IP" behavior minus
// its fatal-on-open-failure quirk: a missing file yields an empty,
// usable blocklist rather than an error, since spec.md treats an absent
// blocklist as "nothing is blocked".
func Load(path string) (*Blocklist, error) {
	bl := &Blocklist{ips: make(map[string]struct{})}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", path).Msg("blocklist file not found, starting with an empty blocklist")
			return bl, nil
		}
		return nil, err
	}
	defer f.Close()

	if err := bl.loadFrom(f); err != nil {
		return nil, err
	}
	return bl, nil
}

func (bl *Blocklist) loadFrom(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ip, err := resolve(line)
		if err != nil {
			log.Warn().Str("entry", line).Err(err).Msg("blocklist entry could not be resolved, skipping")
			continue
		}
		log.Info().Str("entry", line).Str("ip", ip).Msg("adding entry to blocklist")
		bl.ips[ip] = struct{}{}
	}
	return scanner.Err()
}

// resolve normalizes and resolves a hostname or IPv4 literal to its
// dotted-quad string, the same path internal/connio uses for origin
// dials.
func resolve(hostOrIP string) (string, error) {
	if ip := net.ParseIP(hostOrIP); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String(), nil
		}
		return ip.String(), nil
	}

	normalized := hostOrIP
	if ascii, err := idna.Lookup.ToASCII(hostOrIP); err == nil {
		normalized = ascii
	}

	addrs, err := net.LookupIP(normalized)
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if v4 := a.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	if len(addrs) > 0 {
		return addrs[0].String(), nil
	}
	return "", errors.New("no addresses resolved")
}

// Check reports whether host (a hostname or IPv4 literal) resolves to a
// blocked address. A host that cannot be resolved is never treated as
// blocked.
func (bl *Blocklist) Check(host string) bool {
	ip, err := resolve(host)
	if err != nil {
		return false
	}
	_, blocked := bl.ips[ip]
	return blocked
}
