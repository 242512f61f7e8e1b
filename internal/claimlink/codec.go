package claimlink

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// Link URL layout: <host>/claim?c=<chainId>&v=<version>&i=<index>#p=<secret>.
// The secret lives in the fragment so it never reaches an HTTP server.
const (
	ClaimPath      = "/claim"
	ParamChainID   = "c"
	ParamVersion   = "v"
	ParamIndex     = "i"
	FragmentSecret = "p"
)

// Codec encodes claim links against a fixed host.
type Codec struct {
	host string
}

func NewCodec(host string) *Codec {
	return &Codec{host: strings.TrimRight(host, "/")}
}

func (c *Codec) Encode(link ClaimLink) string {
	var b strings.Builder
	b.WriteString(c.host)
	b.WriteString(ClaimPath)
	b.WriteString("?" + ParamChainID + "=")
	b.WriteString(strconv.FormatUint(link.ChainID, 10))
	if link.Version != "" {
		b.WriteString("&" + ParamVersion + "=")
		b.WriteString(url.QueryEscape(link.Version))
	}
	b.WriteString("&" + ParamIndex + "=")
	b.WriteString(strconv.FormatUint(link.Index, 10))
	b.WriteString("#" + FragmentSecret + "=")
	b.WriteString(url.QueryEscape(link.Secret))
	return b.String()
}

// Decode parses a claim link. Any missing or malformed field yields the zero
// ClaimLink and an error wrapping ErrInvalidLink.
func Decode(raw string) (ClaimLink, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		// *url.Error repeats the input, secret included
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return ClaimLink{}, invalidLink("malformed url: %v", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return ClaimLink{}, invalidLink("not an absolute url")
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return ClaimLink{}, invalidLink("malformed query: %v", err)
	}

	chainID, err := requireUint(query, ParamChainID)
	if err != nil {
		return ClaimLink{}, err
	}
	if chainID == 0 {
		return ClaimLink{}, invalidLink("chain id must be non-zero")
	}

	index, err := requireUint(query, ParamIndex)
	if err != nil {
		return ClaimLink{}, err
	}

	fragment, err := url.ParseQuery(u.EscapedFragment())
	if err != nil {
		return ClaimLink{}, invalidLink("malformed fragment")
	}
	secret := fragment.Get(FragmentSecret)
	if secret == "" {
		return ClaimLink{}, invalidLink("missing secret")
	}

	return ClaimLink{
		ChainID: chainID,
		Version: query.Get(ParamVersion),
		Index:   index,
		Secret:  secret,
	}, nil
}

func requireUint(values url.Values, key string) (uint64, error) {
	s := values.Get(key)
	if s == "" {
		return 0, invalidLink("missing %q", key)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, invalidLink("%q is not a non-negative integer: %q", key, s)
	}
	return v, nil
}
