package delivery

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecipientDomain(t *testing.T) {
	cases := map[string]string{
		"user@example.com":   "example.com",
		"USER@Mail.Example.": "mail.example",
	}
	for addr, want := range cases {
		got, err := recipientDomain(addr)
		require.NoError(t, err, addr)
		assert.Equal(t, want, got)
	}

	_, err := recipientDomain("invalid")
	assert.Error(t, err)
}

func TestRoutesOrderedByPreference(t *testing.T) {
	stubMX(t, []*net.MX{
		{Host: "slow.example.com.", Pref: 20},
		{Host: "fast.example.com.", Pref: 5},
		{Host: "backup.example.com.", Pref: 20},
	}, nil)

	hosts, err := routes(context.Background(), "example.com")
	require.NoError(t, err)
	require.Len(t, hosts, 3)
	assert.Equal(t, "fast.example.com", hosts[0])
	assert.ElementsMatch(t, []string{"slow.example.com", "backup.example.com"}, hosts[1:])
}

func TestRoutesNotFoundFallsBackToDomain(t *testing.T) {
	stubMX(t, nil, &net.DNSError{Err: "no such host", Name: "example.net", IsNotFound: true})

	hosts, err := routes(context.Background(), "example.net")
	require.NoError(t, err)
	assert.Equal(t, []string{"example.net"}, hosts)
}

func TestRoutesLookupFailure(t *testing.T) {
	boom := errors.New("resolver unavailable")
	stubMX(t, nil, boom)

	_, err := routes(context.Background(), "example.com")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "MX lookup failed for example.com")
}
