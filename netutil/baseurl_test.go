package netutil

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zhuguadundan/videowhisper/errors"
)

func stubResolver(t *testing.T, ips map[string][]string) {
	t.Helper()
	prev := lookupIPAddr
	lookupIPAddr = func(_ context.Context, host string) ([]net.IPAddr, error) {
		addrs, ok := ips[host]
		if !ok {
			return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
		}
		out := make([]net.IPAddr, 0, len(addrs))
		for _, a := range addrs {
			out = append(out, net.IPAddr{IP: net.ParseIP(a)})
		}
		return out, nil
	}
	t.Cleanup(func() { lookupIPAddr = prev })
}

func TestCheckBaseURLRejectsPrivateRanges(t *testing.T) {
	blocked := []string{
		"https://10.0.0.1/video",
		"https://172.16.5.5/video",
		"https://192.168.1.1/video",
		"https://127.0.0.1/video",
		"https://169.254.1.1/video",
		"https://[::1]/video",
		"https://[fe80::1]/video",
		"https://224.0.0.1/video",
		"https://0.0.0.0/video",
	}
	for _, raw := range blocked {
		err := CheckBaseURL(context.Background(), raw, Policy{})
		require.Error(t, err, raw)
		require.Equal(t, errors.KindURLRejected, errors.Kind(err), raw)
	}
}

func TestCheckBaseURLAllowsPublic(t *testing.T) {
	require.NoError(t, CheckBaseURL(context.Background(), "https://8.8.8.8/video", Policy{}))

	stubResolver(t, map[string][]string{"api.siliconflow.cn": {"47.246.2.13"}})
	require.NoError(t, CheckBaseURL(context.Background(), "https://api.siliconflow.cn/v1", Policy{}))
}

func TestCheckBaseURLPrivateAllowedByPolicy(t *testing.T) {
	p := Policy{AllowPrivateAddresses: true}
	require.NoError(t, CheckBaseURL(context.Background(), "https://192.168.1.1/video", p))
	require.NoError(t, CheckBaseURL(context.Background(), "https://127.0.0.1:8443/v1", p))
}

func TestCheckBaseURLSchemes(t *testing.T) {
	err := CheckBaseURL(context.Background(), "ftp://example.com/file", Policy{})
	require.Equal(t, errors.KindURLRejected, errors.Kind(err))

	err = CheckBaseURL(context.Background(), "http://8.8.8.8/video", Policy{})
	require.Equal(t, errors.KindURLRejected, errors.Kind(err))

	require.NoError(t, CheckBaseURL(context.Background(), "http://8.8.8.8/video", Policy{AllowInsecureHTTP: true}))

	err = CheckBaseURL(context.Background(), "not a url at all", Policy{})
	require.Equal(t, errors.KindURLRejected, errors.Kind(err))
}

func TestCheckBaseURLResolvedPrivateHost(t *testing.T) {
	stubResolver(t, map[string][]string{
		"internal.example.com": {"10.20.30.40"},
		"dual.example.com":     {"8.8.8.8", "192.168.0.10"},
	})

	err := CheckBaseURL(context.Background(), "https://internal.example.com/v1", Policy{})
	require.Equal(t, errors.KindURLRejected, errors.Kind(err))

	// One private address among several is enough to reject.
	err = CheckBaseURL(context.Background(), "https://dual.example.com/v1", Policy{})
	require.Equal(t, errors.KindURLRejected, errors.Kind(err))

	err = CheckBaseURL(context.Background(), "https://missing.example.com/v1", Policy{})
	require.Equal(t, errors.KindURLRejected, errors.Kind(err))
}

func TestCheckBaseURLHostWhitelist(t *testing.T) {
	stubResolver(t, map[string][]string{
		"api.openai.com":        {"104.18.7.192"},
		"api.evil.com":          {"104.18.7.193"},
		"xn--bcher-kva.example": {"104.18.7.194"},
	})

	p := Policy{
		AllowedHosts:        []string{"api.openai.com", "Bücher.example"},
		EnforceAllowedHosts: true,
	}
	require.NoError(t, CheckBaseURL(context.Background(), "https://api.openai.com/v1", p))

	err := CheckBaseURL(context.Background(), "https://api.evil.com/v1", p)
	require.Equal(t, errors.KindURLRejected, errors.Kind(err))

	// IDNA hosts match their punycode form.
	require.NoError(t, CheckBaseURL(context.Background(), "https://xn--bcher-kva.example/v1", p))

	// Whitelist configured but not enforced: unlisted hosts still pass.
	relaxed := Policy{AllowedHosts: []string{"api.openai.com"}}
	stubResolver(t, map[string][]string{"other.example.com": {"8.8.4.4"}})
	require.NoError(t, CheckBaseURL(context.Background(), "https://other.example.com/v1", relaxed))
}
