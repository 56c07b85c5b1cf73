package sessionsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// renewKey is the singleflight key shared by every renewal of a session.
const renewKey = "renew"

// AuthedFetch sends req with the current access credential as a bearer
// token. A 401 triggers one renewal and one retry with the new credential.
// If renewal fails the call returns a KindSessionExpired error.
//
// A success response is returned with its body unread. Any other response is
// consumed and returned as an *Error carrying the parsed body; req is never
// sent more than twice and renewal is never attempted more than once.
//
// A JWT credential that expires within the next few seconds is renewed before
// the first send. That renewal is the call's only one: a 401 afterwards is
// reported as-is.
func (s *Session) AuthedFetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	token := s.creds.Token()
	if token == "" {
		return nil, notAuthenticatedError()
	}

	if err := bufferBody(req); err != nil {
		return nil, err
	}

	renewed := false
	if credentialStale(token, s.now()) {
		fresh, err := s.renewOrExpire(ctx, token)
		if err != nil {
			return nil, err
		}
		token = fresh
		renewed = true
	}

	resp, err := s.send(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || renewed {
		return checkResponse(resp)
	}
	discard(resp)

	fresh, err := s.renewOrExpire(ctx, token)
	if err != nil {
		return nil, err
	}

	resp, err = s.send(ctx, req, fresh)
	if err != nil {
		return nil, err
	}
	return checkResponse(resp)
}

// AuthedJSON is AuthedFetch for JSON APIs. target may be relative to the
// client's base URL. in, when non-nil, is sent as the request body; out,
// when non-nil, receives the decoded response.
func (s *Session) AuthedJSON(ctx context.Context, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.client.resolve(target), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.AuthedFetch(ctx, req)
	if err != nil {
		return err
	}

	return decodeJSON(resp, out, KindHTTP, CodeRequestFailed)
}

// renewOrExpire renews the credential and maps any renewal failure other
// than the caller giving up to KindSessionExpired.
func (s *Session) renewOrExpire(ctx context.Context, stale string) (string, error) {
	token, err := s.renew(ctx, stale)
	if err == nil {
		return token, nil
	}
	if ctx.Err() != nil {
		return "", networkError(ctx.Err())
	}
	return "", sessionExpiredError(err)
}

// renew returns a credential newer than stale. Concurrent callers share one
// in-flight renewal, and a caller whose credential was already replaced by
// someone else's renewal reuses the replacement without asking again.
func (s *Session) renew(ctx context.Context, stale string) (string, error) {
	if current := s.creds.Token(); current != "" && current != stale {
		return current, nil
	}

	// The shared renewal outlives any one caller's cancellation.
	ch := s.renewals.DoChan(renewKey, func() (any, error) {
		current, epoch := s.credentialAt()
		if current == "" {
			return "", notAuthenticatedError()
		}
		// A renewal may have finished between the check above and this flight.
		if current != stale {
			return current, nil
		}
		return s.renewShared(context.WithoutCancel(ctx), epoch)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// renewShared performs the renewal round trip and publishes the result into
// the session it started under. A rejected renewal ticket ends the session;
// network and server failures leave it intact so a later call can try again.
// If the session was logged out or replaced meanwhile, the result is dropped.
func (s *Session) renewShared(ctx context.Context, epoch uint64) (string, error) {
	resp, err := s.client.Renew(ctx)
	if err != nil {
		s.logger.Warn("credential renewal failed", "error", err)
		if KindOf(err) == KindAuth {
			clearErr := s.commitAt(epoch, func() error { return s.clearLocked(ctx) })
			if clearErr != nil && !errors.Is(clearErr, errSessionChanged) {
				s.logger.Error("failed to clear expired session", "error", clearErr)
			}
		}
		return "", err
	}

	err = s.commitAt(epoch, func() error { return s.creds.Replace(ctx, resp.AccessToken) })
	switch {
	case errors.Is(err, errSessionChanged):
		s.logger.Debug("discarding credential renewed for an ended session")
		return "", err
	case err != nil:
		// memory already holds the new credential
		s.logger.Warn("failed to persist renewed credential", "error", err)
	}

	s.logger.Debug("credential renewed")
	return resp.AccessToken, nil
}

// send issues one attempt of req with token attached.
func (s *Session) send(ctx context.Context, req *http.Request, token string) (*http.Response, error) {
	r := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		r.Body = body
	}
	r.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.HTTPClient.Do(r)
	if err != nil {
		return nil, networkError(err)
	}
	return resp, nil
}

// bufferBody makes req's body replayable for the retry and defaults its
// content type to JSON.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}

	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.GetBody != nil {
		return nil
	}

	b, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}

	req.Body = io.NopCloser(bytes.NewReader(b))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
	return nil
}

// checkResponse passes success responses through and turns anything else
// into an *Error with the parsed body attached.
func checkResponse(resp *http.Response) (*http.Response, error) {
	if isSuccess(resp.StatusCode) {
		return resp, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(fmt.Errorf("failed to read response body: %w", err))
	}
	return nil, parseErrorResponse(resp, body, KindHTTP, CodeRequestFailed)
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
