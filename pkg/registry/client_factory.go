package registry

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/docker/distribution/registry/client/auth"
	"github.com/docker/distribution/registry/client/auth/challenge"
	"github.com/docker/distribution/registry/client/transport"
	"github.com/go-kit/kit/log"

	"github.com/tugboat-ci/tugboat/pkg/image"
	"github.com/tugboat-ci/tugboat/pkg/registry/middleware"
)

const pingTimeout = 30 * time.Second

// RemoteClientFactory builds pull clients for the two repositories a
// controller talks to: the upstream registry and the local mirror.
// Per host it settles a scheme once (HTTPS, falling back to HTTP for
// hosts listed insecure) and remembers the auth challenge the host
// answered with. Authentication is attempted as an anonymous pull
// token first, then basic auth with the supplied credentials;
// unauthorized access surfaces as an error from the client.
type RemoteClientFactory struct {
	Logger   log.Logger
	Limiters *middleware.RateLimiters
	Trace    bool

	// InsecureHosts, given as host or host:port exactly as they
	// appear in image names, may be spoken to without certificate
	// verification or over plain HTTP. The local mirror usually
	// belongs here.
	InsecureHosts []string

	mu      sync.Mutex
	manager challenge.Manager
	// apiBase maps a host to its settled scheme://host API base.
	apiBase map[string]string
}

func (f *RemoteClientFactory) insecure(host string) bool {
	for _, h := range f.InsecureHosts {
		if h == host {
			return true
		}
	}
	return false
}

// tracing logs every round-trip; wired in under --registry-trace.
type tracing struct {
	logger log.Logger
	next   http.RoundTripper
}

func (t *tracing) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.next.RoundTrip(req)
	if err == nil {
		t.logger.Log("url", req.URL.String(), "status", res.Status)
	} else {
		t.logger.Log("url", req.URL.String(), "err", err.Error())
	}
	return res, err
}

// endpointFor pings /v2/ on the host to establish the scheme and the
// auth challenge, trying HTTPS before HTTP for insecure hosts. The
// settled base is remembered, so each host is pinged once per
// process, not once per cycle.
func (f *RemoteClientFactory) endpointFor(tx http.RoundTripper, host string, insecure bool) (string, error) {
	f.mu.Lock()
	if f.manager == nil {
		f.manager = challenge.NewSimpleManager()
		f.apiBase = map[string]string{}
	}
	base, ok := f.apiBase[host]
	manager := f.manager
	f.mu.Unlock()
	if ok {
		return base, nil
	}

	schemes := []string{"https"}
	if insecure {
		schemes = append(schemes, "http")
	}
	var lastErr error
	for _, scheme := range schemes {
		ping := url.URL{Scheme: scheme, Host: host, Path: "/v2/"}
		req, err := http.NewRequest("GET", ping.String(), nil)
		if err != nil {
			return "", err
		}
		ctx, cancel := context.WithTimeout(req.Context(), pingTimeout)
		res, err := (&http.Client{Transport: tx}).Do(req.WithContext(ctx))
		if err != nil {
			cancel()
			lastErr = err
			continue
		}
		err = manager.AddResponse(res)
		// The client follows redirects; the API base is wherever the
		// ping settled, scheme and host only.
		settled := *res.Request.URL
		res.Body.Close()
		cancel()
		if err != nil {
			return "", err
		}
		settled.Path = ""
		base = settled.String()
		f.mu.Lock()
		f.apiBase[host] = base
		f.mu.Unlock()
		return base, nil
	}
	return "", lastErr
}

func (f *RemoteClientFactory) ClientFor(repo image.CanonicalName, creds Credentials) (Client, error) {
	insecure := f.insecure(repo.Domain)

	// One of these is built per cycle; keep idle connections on a
	// short leash.
	var tx http.RoundTripper = &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure},
		MaxIdleConns:    10,
		IdleConnTimeout: 10 * time.Second,
		Proxy:           http.ProxyFromEnvironment,
	}
	if f.Limiters != nil {
		tx = f.Limiters.RoundTripper(tx, repo.Domain)
	}
	if f.Trace {
		tx = &tracing{f.Logger, tx}
	}

	base, err := f.endpointFor(tx, repo.Domain, insecure)
	if err != nil {
		return nil, err
	}

	cred := creds.credsFor(repo.Domain)
	if f.Trace {
		f.Logger.Log("repo", repo.String(), "auth", cred.String(), "api", base)
	}

	f.mu.Lock()
	manager := f.manager
	f.mu.Unlock()
	authorizer := auth.NewAuthorizer(manager,
		auth.NewTokenHandler(tx, &credentialStore{cred}, repo.Image, "pull"),
		auth.NewBasicHandler(&credentialStore{cred}),
	)
	tx = transport.NewTransport(tx, authorizer)

	return NewInstrumentedClient(&Remote{transport: tx, repo: repo, base: base}), nil
}

// Succeed lets the sync engine bump a host's rate limit back up after
// metadata has been fetched without incident.
func (f *RemoteClientFactory) Succeed(repo image.CanonicalName) {
	if f.Limiters != nil {
		f.Limiters.Recover(repo.Domain)
	}
}

// credentialStore adapts one host's pre-selected creds to the
// distribution client's auth.CredentialsStore.
type credentialStore struct {
	auth creds
}

func (s *credentialStore) Basic(*url.URL) (string, string) {
	return s.auth.username, s.auth.password
}

func (s *credentialStore) RefreshToken(*url.URL, string) string {
	return ""
}

func (s *credentialStore) SetRefreshToken(*url.URL, string, string) {
}
