package tryit

import (
	"net/url"
	"strings"

	"github.com/vitalvas/apiconsole/openapi"
)

// Authenticator attaches credentials to a built request.
type Authenticator interface {
	Apply(req *Request) error
}

// BearerToken sends the token as "Authorization: Bearer <token>".
type BearerToken string

func (t BearerToken) Apply(req *Request) error {
	if t == "" {
		return nil
	}
	req.Headers.Set("Authorization", "Bearer "+string(t))
	return nil
}

// APIKey sends Value in the header or query parameter called Name.
type APIKey struct {
	Name  string
	In    string
	Value string
}

func (k APIKey) Apply(req *Request) error {
	if k.Value == "" || k.Name == "" {
		return nil
	}

	switch k.In {
	case openapi.InQuery:
		sep := "?"
		if strings.Contains(req.URL, "?") {
			sep = "&"
		}
		req.URL += sep + escapeComponent(k.Name) + "=" + escapeComponent(k.Value)
	case openapi.InCookie:
		req.Headers.Add("Cookie", k.Name+"="+url.QueryEscape(k.Value))
	default:
		req.Headers.Set(k.Name, k.Value)
	}

	return nil
}

// Chain applies several authenticators in order.
type Chain []Authenticator

func (c Chain) Apply(req *Request) error {
	for _, a := range c {
		if err := a.Apply(req); err != nil {
			return err
		}
	}
	return nil
}

// ForEndpoint picks the authenticator for ep from the security schemes it
// requires. HTTP bearer schemes send the token as a bearer token, API key
// schemes send it under the scheme's name. It returns nil when the token is
// empty or the endpoint requires no supported scheme.
func ForEndpoint(doc *openapi.Document, ep *openapi.Endpoint, token string) Authenticator {
	if token == "" || doc == nil {
		return nil
	}

	var chain Chain
	for _, scheme := range doc.EndpointSchemes(ep) {
		switch {
		case scheme.IsBearer():
			chain = append(chain, BearerToken(token))
		case scheme.IsAPIKey():
			chain = append(chain, APIKey{Name: scheme.Name, In: scheme.In, Value: token})
		}
	}

	switch len(chain) {
	case 0:
		return nil
	case 1:
		return chain[0]
	default:
		return chain
	}
}
