package gateway

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/analystproxy/analystproxy/internal/warehouse"
)

var ErrConfiguration = errors.New("gateway configuration error")

const (
	analysisPath   = "/api/v2/cortex/analyst/message"
	feedbackPath   = "/api/v2/cortex/analyst/feedback"
	completionPath = "/api/v2/cortex/inference:complete"
	searchPathFmt  = "/api/v2/databases/%s/schemas/%s/cortex-search-services/%s:query"

	tokenTypeHeader = "X-Snowflake-Authorization-Token-Type"
)

type Capability struct {
	name     string
	database string
	schema   string
	service  string
}

var (
	Analysis   = Capability{name: "analysis"}
	Completion = Capability{name: "completion"}
	Feedback   = Capability{name: "feedback"}
)

func Search(database, schema, service string) Capability {
	return Capability{name: "search", database: database, schema: schema, service: service}
}

func (c Capability) String() string {
	return c.name
}

func (c Capability) path() (string, error) {
	switch c.name {
	case "analysis":
		return analysisPath, nil
	case "feedback":
		return feedbackPath, nil
	case "completion":
		return completionPath, nil
	case "search":
		if c.database == "" || c.schema == "" || c.service == "" {
			return "", fmt.Errorf("%w: search requires database, schema and service", ErrConfiguration)
		}
		return strings.ToLower(fmt.Sprintf(searchPathFmt,
			url.PathEscape(c.database), url.PathEscape(c.schema), url.PathEscape(c.service))), nil
	default:
		return "", fmt.Errorf("%w: unknown capability %q", ErrConfiguration, c.name)
	}
}

// RuntimeProbe reports whether the process runs inside the warehouse's own
// compute environment.
type RuntimeProbe func() bool

// ProxyProbe treats a configured embedded proxy URL as the embedded runtime.
func ProxyProbe(proxyURL string) RuntimeProbe {
	return func() bool { return strings.TrimSpace(proxyURL) != "" }
}

// Gateway builds remote endpoint URLs and auth headers for one warehouse
// connection. The deployment mode is probed once in New.
type Gateway struct {
	embedded bool
	baseURL  string
	auth     map[string]string
}

func New(conn warehouse.Connection, probe RuntimeProbe) (*Gateway, error) {
	embedded := probe != nil && probe()

	var host, scheme string
	auth := map[string]string{}
	switch typed := conn.(type) {
	case *warehouse.Session:
		if typed == nil {
			return nil, fmt.Errorf("%w: nil session", ErrConfiguration)
		}
		host, scheme = typed.Host, typed.Scheme
		auth["Authorization"] = fmt.Sprintf("Snowflake Token=%q", typed.Token)
	case *warehouse.DirectConnection:
		if typed == nil {
			return nil, fmt.Errorf("%w: nil direct connection", ErrConfiguration)
		}
		host, scheme = typed.Host, typed.Scheme
		auth["Authorization"] = "Bearer " + typed.Token
		if typed.TokenType != "" {
			auth[tokenTypeHeader] = typed.TokenType
		}
	default:
		return nil, fmt.Errorf("%w: unrecognized connection type %T", ErrConfiguration, conn)
	}

	if embedded {
		return &Gateway{embedded: true}, nil
	}
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("%w: warehouse host is required outside the embedded runtime", ErrConfiguration)
	}
	return &Gateway{baseURL: BaseURL(host, scheme), auth: auth}, nil
}

// BaseURL normalises a warehouse account host into the base URL of its REST
// API: underscores become hyphens and the host is lower-cased.
func BaseURL(host, scheme string) string {
	if scheme == "" {
		scheme = "https"
	}
	host = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(host), "_", "-"))
	return strings.ToLower(scheme) + "://" + host
}

func (g *Gateway) Embedded() bool {
	return g.embedded
}

func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// EndpointFor returns the URL for a capability. Extra components are joined
// onto the capability path. Embedded gateways return the bare path.
func (g *Gateway) EndpointFor(capability Capability, extra ...string) (string, error) {
	path, err := capability.path()
	if err != nil {
		return "", err
	}
	for _, component := range extra {
		component = strings.Trim(component, "/")
		if component == "" {
			continue
		}
		path += "/" + url.PathEscape(component)
	}
	if g.embedded {
		return path, nil
	}
	return g.baseURL + path, nil
}

func (g *Gateway) HeadersFor(capability Capability) map[string]string {
	headers := map[string]string{"Content-Type": "application/json"}
	switch capability.name {
	case "completion", "search":
		headers["Accept"] = "application/json"
	}
	for key, value := range g.auth {
		headers[key] = value
	}
	return headers
}
