package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

const ErrUnauthorized = staticErr("token rejected")

// Verifier resolves a bearer token to a player identity before the
// connection is accepted.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// RemoteVerifier asks an external auth service to resolve tokens.
type RemoteVerifier struct {
	verifyURL string
	http      *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

func NewRemoteVerifier(verifyURL string) *RemoteVerifier {
	return &RemoteVerifier{
		verifyURL:      strings.TrimSpace(verifyURL),
		http:           &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 5 * time.Second,
		retryMax:       3,
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Identity string `json:"identity"`
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (string, error) {
	payload, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(v.verifyURL)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	var lastErr error
	for attempt := 1; attempt <= v.retryMax; attempt++ {
		err := v.http.DoDeadline(req, resp, v.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("verify request failed: %w", err)
			if attempt == v.retryMax {
				return "", lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return "", lastErr
			}
			continue
		}

		status := resp.StatusCode()
		switch {
		case status == fasthttp.StatusOK:
			var out verifyResponse
			if err := json.Unmarshal(resp.Body(), &out); err != nil {
				return "", fmt.Errorf("decode verify response: %w", err)
			}
			if strings.TrimSpace(out.Identity) == "" {
				return "", ErrUnauthorized
			}
			return out.Identity, nil
		case status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden:
			return "", ErrUnauthorized
		case shouldRetryStatus(status) && attempt < v.retryMax:
			lastErr = fmt.Errorf("auth service error: status=%d", status)
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return "", lastErr
			}
		default:
			return "", fmt.Errorf("auth service error: status=%d", status)
		}
	}
	return "", lastErr
}

func (v *RemoteVerifier) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(v.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(v.defaultTimeout)
}

// StaticVerifier accepts tokens of the form "<identity>.<signature>" where
// the signature is hex HMAC-SHA256 of the identity under a shared secret.
// Used when no external auth service is configured.
type StaticVerifier struct {
	secret []byte
}

func NewStaticVerifier(secret string) *StaticVerifier {
	return &StaticVerifier{secret: []byte(secret)}
}

// SignIdentity mints a token for the identity. Exposed for dev tooling and
// tests.
func (v *StaticVerifier) SignIdentity(identity string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(identity))
	return identity + "." + hex.EncodeToString(mac.Sum(nil))
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	i := strings.LastIndexByte(token, '.')
	if i <= 0 || i == len(token)-1 {
		return "", ErrUnauthorized
	}
	identity, sig := token[:i], token[i+1:]
	want, err := hex.DecodeString(sig)
	if err != nil {
		return "", ErrUnauthorized
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(identity))
	if !hmac.Equal(want, mac.Sum(nil)) {
		return "", ErrUnauthorized
	}
	return identity, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
