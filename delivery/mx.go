package delivery

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"slices"
	"strings"

	"courier/internal/email"
)

// ErrNullMX is returned for domains that publish a null MX record (RFC 7505).
var ErrNullMX = errors.New("domain does not accept mail")

var mxLookup = net.DefaultResolver.LookupMX

// routes returns the hosts to try for domain, most preferred first. Hosts of
// equal preference are shuffled. A domain without MX records is its own
// implicit mail exchanger.
func routes(ctx context.Context, domain string) ([]string, error) {
	records, err := mxLookup(ctx, domain)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return []string{domain}, nil
		}
		return nil, fmt.Errorf("MX lookup failed for %s: %w", domain, err)
	}
	if len(records) == 0 {
		return []string{domain}, nil
	}
	if len(records) == 1 && strings.TrimSuffix(records[0].Host, ".") == "" {
		return nil, fmt.Errorf("%s: %w", domain, ErrNullMX)
	}

	rand.Shuffle(len(records), func(i, j int) { records[i], records[j] = records[j], records[i] })
	slices.SortStableFunc(records, func(a, b *net.MX) int { return cmp.Compare(a.Pref, b.Pref) })

	hosts := make([]string, 0, len(records))
	for _, mx := range records {
		if host := strings.TrimSuffix(mx.Host, "."); host != "" {
			hosts = append(hosts, host)
		}
	}
	return hosts, nil
}

// recipientDomain returns the routing domain of a recipient address.
func recipientDomain(address string) (string, error) {
	domain, err := email.Domain(address)
	if err != nil {
		return "", fmt.Errorf("invalid email format: %w", err)
	}
	return domain, nil
}
