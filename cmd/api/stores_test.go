package main

import (
	"context"
	"errors"
	"testing"

	"studio/internal/infra"
	"studio/internal/infra/credentials"
)

type fakeResolver struct {
	stored map[string]string
	err    error
}

func (f fakeResolver) Resolve(_ context.Context, provider, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if f.err != nil {
		return "", f.err
	}
	return f.stored[provider], nil
}

func TestResolveSecret(t *testing.T) {
	stored := map[string]string{credentials.ProviderPayment: "skey_stored", credentials.ProviderAggregator: "agg_stored"}
	tests := []struct {
		name       string
		resolver   fakeResolver
		provider   string
		configured string
		want       string
	}{
		{name: "env wins", resolver: fakeResolver{stored: stored}, provider: credentials.ProviderPayment, configured: "skey_env", want: "skey_env"},
		{name: "stored payment key", resolver: fakeResolver{stored: stored}, provider: credentials.ProviderPayment, want: "skey_stored"},
		{name: "stored aggregator key", resolver: fakeResolver{stored: stored}, provider: credentials.ProviderAggregator, want: "agg_stored"},
		{name: "nothing stored", resolver: fakeResolver{}, provider: credentials.ProviderPayment, want: ""},
		{name: "lookup error", resolver: fakeResolver{err: errors.New("db down")}, provider: credentials.ProviderPayment, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := resolveSecret(context.Background(), tc.resolver, tc.provider, tc.configured, infra.NopLogger())
			if got != tc.want {
				t.Fatalf("resolveSecret = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStoresSecretWithoutTokenStore(t *testing.T) {
	st := &stores{}
	if got := st.secret(context.Background(), credentials.ProviderPayment, "skey_env", infra.NopLogger()); got != "skey_env" {
		t.Fatalf("secret = %q, want skey_env", got)
	}
}
