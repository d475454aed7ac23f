package activitypub

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-fed/httpsig"
)

// MaxClockSkew bounds the difference between a signed Date header and local time.
const MaxClockSkew = 5 * time.Minute

var signedHeaders = []string{httpsig.RequestTarget, "host", "date", "digest", "content-type"}

// SignRequest adds Digest and Signature headers to an outgoing request.
// keyId format: "https://example.com/ap/users/alice#main-key"
func SignRequest(req *http.Request, body []byte, privateKey *rsa.PrivateKey, keyId string) error {
	if req.Header.Get("Host") == "" {
		req.Header.Set("Host", req.URL.Host)
	}
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", ContentType)
	}
	// the signer refuses to overwrite an existing digest
	req.Header.Del("Digest")

	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		signedHeaders,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	if err := signer.SignRequest(privateKey, keyId, req, body); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	return nil
}

// DigestHeader returns the Digest header value for body.
func DigestHeader(body []byte) string {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
}

func digestMatches(header string, body []byte) bool {
	sum := sha256.Sum256(body)
	expected := base64.StdEncoding.EncodeToString(sum[:])
	for _, part := range strings.Split(header, ",") {
		algo, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(algo, "SHA-256") {
			continue
		}
		return subtle.ConstantTimeCompare([]byte(value), []byte(expected)) == 1
	}
	return false
}

// SignatureParams are the fields of a Signature header.
type SignatureParams struct {
	KeyID     string
	Algorithm string
	Headers   []string
	Signature string
}

// ParseSignatureHeader splits `keyId="…",algorithm="…",headers="…",signature="…"`.
// headers defaults to "date" when absent.
func ParseSignatureHeader(value string) (*SignatureParams, error) {
	fields := make(map[string]string)
	rest := strings.TrimSpace(value)
	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("malformed signature parameter near %q", rest)
		}
		key := strings.ToLower(strings.TrimSpace(rest[:eq]))
		rest = rest[eq+1:]

		var val string
		if strings.HasPrefix(rest, `"`) {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated value for %s", key)
			}
			val = rest[1 : end+1]
			rest = rest[end+2:]
		} else {
			end := strings.IndexByte(rest, ',')
			if end < 0 {
				end = len(rest)
			}
			val = strings.TrimSpace(rest[:end])
			rest = rest[end:]
		}
		fields[key] = val

		rest = strings.TrimSpace(rest)
		rest = strings.TrimSpace(strings.TrimPrefix(rest, ","))
	}

	params := &SignatureParams{
		KeyID:     fields["keyid"],
		Algorithm: fields["algorithm"],
		Signature: fields["signature"],
	}
	if params.KeyID == "" {
		return nil, fmt.Errorf("missing keyId")
	}
	if params.Signature == "" {
		return nil, fmt.Errorf("missing signature")
	}
	headers := fields["headers"]
	if headers == "" {
		headers = "date"
	}
	params.Headers = strings.Fields(strings.ToLower(headers))
	return params, nil
}

// InboundRequest is the part of an HTTP request that signature verification needs.
// Header must carry Host; Path includes the query string, if any.
type InboundRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

func (r InboundRequest) httpRequest() (*http.Request, error) {
	u, err := url.ParseRequestURI(r.Path)
	if err != nil {
		return nil, err
	}
	return &http.Request{
		Method: r.Method,
		URL:    u,
		Header: r.Header.Clone(),
		Host:   r.Header.Get("Host"),
	}, nil
}

type KeyResolver interface {
	ResolveKey(ctx context.Context, keyId string) (*rsa.PublicKey, error)
}

type ReplayChecker interface {
	CheckAndRecord(ctx context.Context, signature, date string) (bool, error)
}

// Verifier checks inbound HTTP signatures.
type Verifier struct {
	keys    KeyResolver
	replay  ReplayChecker
	maxSkew time.Duration
	now     func() time.Time
}

func NewVerifier(keys KeyResolver, replay ReplayChecker) *Verifier {
	return &Verifier{
		keys:    keys,
		replay:  replay,
		maxSkew: MaxClockSkew,
		now:     time.Now,
	}
}

// Verify reports whether req carries a valid, fresh signature.
func (v *Verifier) Verify(ctx context.Context, req InboundRequest) bool {
	return v.Check(ctx, req) == nil
}

// Check is Verify with the reason for rejection. Digest and Date are checked
// before the replay cache is consulted, and the key is resolved last.
func (v *Verifier) Check(ctx context.Context, req InboundRequest) error {
	sigHeader := req.Header.Get("Signature")
	if sigHeader == "" {
		return fmt.Errorf("%w: missing Signature header", ErrSignatureInvalid)
	}

	if digest := req.Header.Get("Digest"); digest != "" && !digestMatches(digest, req.Body) {
		return fmt.Errorf("%w: digest mismatch", ErrSignatureInvalid)
	}

	date := req.Header.Get("Date")
	if date != "" {
		t, err := http.ParseTime(date)
		if err != nil {
			return fmt.Errorf("%w: bad Date header: %v", ErrSignatureInvalid, err)
		}
		skew := v.now().Sub(t)
		if skew < 0 {
			skew = -skew
		}
		if skew > v.maxSkew {
			return fmt.Errorf("%w: %s", ErrClockSkewExceeded, skew.Round(time.Second))
		}
	}

	params, err := ParseSignatureHeader(sigHeader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	fresh, err := v.replay.CheckAndRecord(ctx, params.Signature, date)
	if err != nil {
		return fmt.Errorf("replay check: %w", err)
	}
	if !fresh {
		return ErrReplayDetected
	}

	pub, err := v.keys.ResolveKey(ctx, params.KeyID)
	if err != nil {
		return err
	}

	r, err := req.httpRequest()
	if err != nil {
		return fmt.Errorf("%w: bad request target: %v", ErrSignatureInvalid, err)
	}
	verifier, err := httpsig.NewVerifier(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if err := verifier.Verify(pub, httpsig.RSA_SHA256); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}
