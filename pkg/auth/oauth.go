package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	// ClientSecretsFile is the Google OAuth client downloaded from the cloud console,
	// stored in the config directory.
	ClientSecretsFile = "credentials.json"
	TokenFile         = "token.json"

	// LocalhostAuthPort receives the OAuth redirect.
	LocalhostAuthPort = "6789"

	authTimeout = 5 * time.Minute
)

// CalendarScopes are the scopes deadline sync needs.
var CalendarScopes = []string{
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
}

// TokenPath is where the user's token is cached inside dir.
func TokenPath(dir string) string {
	return filepath.Join(dir, TokenFile)
}

// GetConfig reads the client secrets in dir and pins a localhost redirect to LocalhostAuthPort.
func GetConfig(dir string, scopes []string, logger logrus.FieldLogger) (*oauth2.Config, error) {
	secretsPath := filepath.Join(dir, ClientSecretsFile)
	b, err := os.ReadFile(secretsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", secretsPath, err)
	}
	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = redirectURL(config.RedirectURL, logger)
	return config, nil
}

func redirectURL(configured string, logger logrus.FieldLogger) string {
	if configured == "urn:ietf:wg:oauth:2.0:oob" || configured == "" {
		return fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
	}
	u, err := url.Parse(configured)
	if err != nil {
		logger.WithError(err).Warnf("could not parse redirect URL %q, using it as is", configured)
		return configured
	}
	if u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		logger.Warnf("redirect URL %q is not a localhost callback", configured)
		return configured
	}
	if u.Port() != LocalhostAuthPort {
		u.Host = net.JoinHostPort(u.Hostname(), LocalhostAuthPort)
	}
	return u.String()
}

// GetClient returns an HTTP client authorized for scopes. A cached token is reused and
// refreshed as needed; without one the browser flow runs.
func GetClient(ctx context.Context, dir string, scopes []string, logger logrus.FieldLogger) (*http.Client, error) {
	config, err := GetConfig(dir, scopes, logger)
	if err != nil {
		return nil, err
	}

	tokenPath := TokenPath(dir)
	tok, err := tokenFromFile(tokenPath)
	if err != nil {
		logger.Infof("no token found at %s, starting web authorization", tokenPath)
		tok, err = getTokenFromWeb(ctx, config, os.Stderr, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to get token from web: %w", err)
		}
		if err := saveToken(tokenPath, tok); err != nil {
			return nil, err
		}
	}

	src := &savingTokenSource{
		base:   config.TokenSource(ctx, tok),
		path:   tokenPath,
		last:   tok,
		logger: logger,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// savingTokenSource writes refreshed tokens back to disk.
type savingTokenSource struct {
	base   oauth2.TokenSource
	path   string
	last   *oauth2.Token
	logger logrus.FieldLogger
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last.AccessToken || tok.RefreshToken != s.last.RefreshToken {
		if err := saveToken(s.path, tok); err != nil {
			s.logger.WithError(err).Warn("could not save refreshed token")
		}
		s.last = tok
	}
	return tok, nil
}

func getTokenFromWeb(ctx context.Context, config *oauth2.Config, out io.Writer, logger logrus.FieldLogger) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", net.JoinHostPort("localhost", LocalhostAuthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- errors.New("authorization code not found in redirect URL"):
				default:
				}
				return
			}
			fmt.Fprint(w, "Authentication successful! You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- fmt.Errorf("HTTP server error: %w", err):
			default:
			}
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(out, "Open the following URL in your browser to authorize calendar access:\n%s\n", authURL)
	logger.Info("waiting for authorization code")

	select {
	case code := <-codeCh:
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := config.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(authTimeout):
		return nil, errors.New("authorization timed out, please try again")
	}
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", path, err)
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// GetCalendarService creates an authenticated Google Calendar service.
func GetCalendarService(ctx context.Context, dir string, logger logrus.FieldLogger) (*calendar.Service, error) {
	client, err := GetClient(ctx, dir, CalendarScopes, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticated client for Calendar API: %w", err)
	}
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Google Calendar service: %w", err)
	}
	return srv, nil
}

// Reset removes the cached token so the next GetClient runs the browser flow again.
func Reset(dir string) error {
	err := os.Remove(TokenPath(dir))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete token file: %w", err)
	}
	return nil
}
