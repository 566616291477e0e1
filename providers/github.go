package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/jrsteele09/go-auth-client/identity"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const defaultGitHubUserInfoURL = "https://api.github.com/user"

var _ Provider = (*GitHubProvider)(nil)

// GitHubProvider is provider B. GitHub issues no ID token, so the access token is
// exchanged and the profile fetched for display purposes.
type GitHubProvider struct {
	oauth2Config *oauth2.Config
	userInfoURL  string
}

func NewGitHubProvider(cfg Config) (*GitHubProvider, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("[NewGitHubProvider] ClientID is required")
	}
	endpoint := github.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = defaultGitHubUserInfoURL
	}
	return &GitHubProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		userInfoURL: userInfoURL,
	}, nil
}

func (p *GitHubProvider) ID() ID {
	return ProviderB
}

func (p *GitHubProvider) AuthCodeURL(req Request) string {
	return p.oauth2Config.AuthCodeURL(req.State, oauth2.S256ChallengeOption(req.Verifier))
}

type gitHubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (p *GitHubProvider) Exchange(ctx context.Context, code string, req Request) (identity.ProviderCredential, error) {
	token, err := p.oauth2Config.Exchange(ctx, code, oauth2.VerifierOption(req.Verifier))
	if err != nil {
		return identity.ProviderCredential{}, errors.Wrap(err, "[GitHubProvider.Exchange] token exchange")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return identity.ProviderCredential{}, errors.Wrap(err, "[GitHubProvider.Exchange] NewRequest")
	}
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	resp, err := p.oauth2Config.Client(ctx, token).Do(httpReq)
	if err != nil {
		return identity.ProviderCredential{}, errors.Wrap(err, "[GitHubProvider.Exchange] fetch profile")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return identity.ProviderCredential{}, fmt.Errorf("fetch profile: unexpected status %d", resp.StatusCode)
	}
	var user gitHubUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&user); err != nil {
		return identity.ProviderCredential{}, errors.Wrap(err, "[GitHubProvider.Exchange] decode profile")
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	return identity.ProviderCredential{
		ProviderID:  identity.GitHubProviderID,
		AccessToken: token.AccessToken,
		Subject:     strconv.FormatInt(user.ID, 10),
		Email:       user.Email,
		Name:        name,
	}, nil
}
