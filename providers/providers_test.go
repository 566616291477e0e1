package providers_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/jrsteele09/go-auth-client/providers"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testIssuer   = "https://issuer.test"
	testClientID = "client-a"
)

type redirectFunc func(ctx context.Context, authURL string) (providers.Result, error)

func (f redirectFunc) Redirect(ctx context.Context, authURL string) (providers.Result, error) {
	return f(ctx, authURL)
}

// approve echoes the request state back with the given code and records the nonce.
func approve(t *testing.T, code string, nonce *string, mu *sync.Mutex) providers.Redirector {
	t.Helper()
	return redirectFunc(func(_ context.Context, authURL string) (providers.Result, error) {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		q := u.Query()
		require.Equal(t, "S256", q.Get("code_challenge_method"))
		require.NotEmpty(t, q.Get("code_challenge"))
		if nonce != nil {
			mu.Lock()
			*nonce = q.Get("nonce")
			mu.Unlock()
		}
		return providers.Result{Code: code, State: q.Get("state")}, nil
	})
}

type oidcFixture struct {
	server   *httptest.Server
	key      *rsa.PrivateKey
	mu       sync.Mutex
	nonce    string
	override string
}

func newOIDCFixture(t *testing.T) *oidcFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	f := &oidcFixture{key: key}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" || r.PostForm.Get("code_verifier") == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		f.mu.Lock()
		nonce := f.nonce
		if f.override != "" {
			nonce = f.override
		}
		f.mu.Unlock()
		idToken := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"iss":   testIssuer,
			"aud":   testClientID,
			"sub":   "sub-123",
			"email": "ada@example.com",
			"name":  "Ada",
			"nonce": nonce,
			"iat":   time.Now().Unix(),
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		signed, err := idToken.SignedString(key)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-a",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     signed,
		})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *oidcFixture) provider() *providers.OIDCProvider {
	verifier := oidc.NewVerifier(testIssuer,
		&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&f.key.PublicKey}},
		&oidc.Config{ClientID: testClientID})
	return providers.NewOIDCProviderWithVerifier(providers.Config{
		ClientID:     testClientID,
		ClientSecret: "secret",
		RedirectURL:  "http://127.0.0.1:8765/callback",
	}, oauth2.Endpoint{
		AuthURL:   f.server.URL + "/authorize",
		TokenURL:  f.server.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}, verifier)
}

func TestFlow_OIDCProvider(t *testing.T) {
	fixture := newOIDCFixture(t)
	flow, err := providers.NewFlow(approve(t, "good-code", &fixture.nonce, &fixture.mu), fixture.provider())
	require.NoError(t, err)

	cred, err := flow.Authorize(context.Background(), providers.ProviderA)
	require.NoError(t, err)
	require.Equal(t, identity.GoogleProviderID, cred.ProviderID)
	require.Equal(t, "sub-123", cred.Subject)
	require.Equal(t, "ada@example.com", cred.Email)
	require.Equal(t, "Ada", cred.Name)
	require.Equal(t, "access-a", cred.AccessToken)
	require.NotEmpty(t, cred.IDToken)
}

func TestFlow_OIDCNonceMismatch(t *testing.T) {
	fixture := newOIDCFixture(t)
	fixture.override = "replayed"
	flow, err := providers.NewFlow(approve(t, "good-code", &fixture.nonce, &fixture.mu), fixture.provider())
	require.NoError(t, err)

	_, err = flow.Authorize(context.Background(), providers.ProviderA)
	require.ErrorIs(t, err, providers.ErrNonceMismatch)
}

func TestFlow_ExchangeRejected(t *testing.T) {
	fixture := newOIDCFixture(t)
	flow, err := providers.NewFlow(approve(t, "bad-code", &fixture.nonce, &fixture.mu), fixture.provider())
	require.NoError(t, err)

	_, err = flow.Authorize(context.Background(), providers.ProviderA)
	require.Error(t, err)
	require.NotErrorIs(t, err, providers.ErrCancelled)
}

func TestFlow_GitHubProvider(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "gh-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"access-b","token_type":"bearer"}`)
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer access-b", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"id":42,"login":"octocat","name":"","email":"octo@example.com"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	gh, err := providers.NewGitHubProvider(providers.Config{
		ClientID:    "client-b",
		AuthURL:     server.URL + "/authorize",
		TokenURL:    server.URL + "/token",
		UserInfoURL: server.URL + "/user",
	})
	require.NoError(t, err)
	flow, err := providers.NewFlow(approve(t, "gh-code", nil, nil), gh)
	require.NoError(t, err)

	cred, err := flow.Authorize(context.Background(), providers.ProviderB)
	require.NoError(t, err)
	require.Equal(t, identity.GitHubProviderID, cred.ProviderID)
	require.Equal(t, "42", cred.Subject)
	require.Equal(t, "octocat", cred.Name)
	require.Equal(t, "octo@example.com", cred.Email)
	require.Equal(t, "access-b", cred.AccessToken)
}

func TestFlow_AccessDeniedIsCancelled(t *testing.T) {
	gh, err := providers.NewGitHubProvider(providers.Config{ClientID: "client-b"})
	require.NoError(t, err)
	flow, err := providers.NewFlow(redirectFunc(func(_ context.Context, _ string) (providers.Result, error) {
		return providers.Result{Error: "access_denied"}, nil
	}), gh)
	require.NoError(t, err)

	_, err = flow.Authorize(context.Background(), providers.ProviderB)
	require.ErrorIs(t, err, providers.ErrCancelled)
}

func TestFlow_ContextCancelledIsCancelled(t *testing.T) {
	gh, err := providers.NewGitHubProvider(providers.Config{ClientID: "client-b"})
	require.NoError(t, err)
	flow, err := providers.NewFlow(redirectFunc(func(ctx context.Context, _ string) (providers.Result, error) {
		<-ctx.Done()
		return providers.Result{}, ctx.Err()
	}), gh)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = flow.Authorize(ctx, providers.ProviderB)
	require.ErrorIs(t, err, providers.ErrCancelled)
}

func TestFlow_StateMismatch(t *testing.T) {
	gh, err := providers.NewGitHubProvider(providers.Config{ClientID: "client-b"})
	require.NoError(t, err)
	flow, err := providers.NewFlow(redirectFunc(func(_ context.Context, _ string) (providers.Result, error) {
		return providers.Result{Code: "c", State: "forged"}, nil
	}), gh)
	require.NoError(t, err)

	_, err = flow.Authorize(context.Background(), providers.ProviderB)
	require.ErrorIs(t, err, providers.ErrStateMismatch)
}

func TestFlow_UnknownProvider(t *testing.T) {
	flow, err := providers.NewFlow(redirectFunc(func(context.Context, string) (providers.Result, error) {
		t.Fatal("redirect must not be attempted")
		return providers.Result{}, nil
	}))
	require.NoError(t, err)
	require.Empty(t, flow.Providers())

	_, err = flow.Authorize(context.Background(), providers.ProviderA)
	require.ErrorIs(t, err, providers.ErrUnknownProvider)
}

func TestNewFlow_RequiresRedirector(t *testing.T) {
	_, err := providers.NewFlow(nil)
	require.Error(t, err)
}

func TestLoopbackRedirector_ReceivesCallback(t *testing.T) {
	redirector := providers.NewLoopbackRedirector("127.0.0.1:0")
	redirector.Open = func(authURL string) error {
		require.Equal(t, "https://provider.test/authorize", authURL)
		resp, err := http.Get(redirector.CallbackURL() + "?code=abc&state=xyz")
		require.NoError(t, err)
		return resp.Body.Close()
	}

	result, err := redirector.Redirect(context.Background(), "https://provider.test/authorize")
	require.NoError(t, err)
	require.Equal(t, providers.Result{Code: "abc", State: "xyz"}, result)
	require.Empty(t, redirector.CallbackURL())
}

func TestLoopbackRedirector_ReportsProviderError(t *testing.T) {
	redirector := providers.NewLoopbackRedirector("127.0.0.1:0")
	redirector.Open = func(string) error {
		resp, err := http.Get(redirector.CallbackURL() + "?error=access_denied&error_description=nope")
		require.NoError(t, err)
		return resp.Body.Close()
	}

	result, err := redirector.Redirect(context.Background(), "https://provider.test/authorize")
	require.NoError(t, err)
	require.Equal(t, "access_denied", result.Error)
	require.Equal(t, "nope", result.ErrorDescription)
}

func TestLoopbackRedirector_ContextCancelled(t *testing.T) {
	redirector := providers.NewLoopbackRedirector("127.0.0.1:0")
	redirector.Open = func(string) error { return nil }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := redirector.Redirect(ctx, "https://provider.test/authorize")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
