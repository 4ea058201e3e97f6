package stranger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/bowerhall/chatbridge/internal/logger"
)

const (
	recaptchaNoscriptURL = "http://www.google.com/recaptcha/api/noscript?"
	recaptchaReferer     = "http://www.omegle.com/"
)

var recaptchaImageRe = regexp.MustCompile(`<center><img width="\d+" height="\d+" alt="" src="image\?c=(.*?)"></center>`)

var errImageNotFound = errors.New("could not find the challenge image")

// ChallengeRequest identifies the challenge to resolve and the identity the
// session presents to remote hosts.
type ChallengeRequest struct {
	Token     string
	UserAgent string
}

// ImageResolver finds the image a human needs to look at to solve a
// challenge.
type ImageResolver interface {
	ResolveImage(ctx context.Context, req ChallengeRequest) (string, error)
}

// RecaptchaResolver scrapes the reCAPTCHA noscript page for the image
// reference belonging to a challenge key.
type RecaptchaResolver struct {
	transport *Transport
	pageURL   string
}

func NewRecaptchaResolver(transport *Transport) *RecaptchaResolver {
	return &RecaptchaResolver{transport: transport, pageURL: recaptchaNoscriptURL}
}

func (r *RecaptchaResolver) ResolveImage(ctx context.Context, req ChallengeRequest) (string, error) {
	page, err := r.transport.Fetch(ctx, Request{
		Path:      r.pageURL + url.Values{"k": {req.Token}}.Encode(),
		Header:    http.Header{"Referer": {recaptchaReferer}},
		UserAgent: req.UserAgent,
	})
	if err != nil {
		return "", err
	}

	match := recaptchaImageRe.FindSubmatch(page)
	if match == nil {
		return "", errImageNotFound
	}
	return string(match[1]), nil
}

func newImageLookup(token string) *ImageLookup {
	return &ImageLookup{Token: token, done: make(chan struct{})}
}

// FinishedLookup returns a lookup that has already completed with ref or
// err. It lets code that drives Handlers directly supply an image.
func FinishedLookup(token, ref string, err error) *ImageLookup {
	l := newImageLookup(token)
	l.finish(ref, err)
	return l
}

// Done is closed once the lookup has finished.
func (l *ImageLookup) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the image reference is known, the lookup fails, or ctx
// ends.
func (l *ImageLookup) Wait(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-l.done:
		return l.ref, l.err
	}
}

func (l *ImageLookup) finish(ref string, err error) {
	l.once.Do(func() {
		l.ref, l.err = ref, err
		close(l.done)
	})
}

// startChallenge records the challenge carried by ev as pending, replacing
// any earlier one, and starts resolving its image.
func (c *Client) startChallenge(gen uint64, ev Event) (string, *ImageLookup, bool) {
	token := stringParam(ev.Params, 0)
	if token == "" {
		logger.Debug("challenge event without token", "event", ev.Tag)
		return "", nil, false
	}

	c.mu.Lock()
	if gen != c.gen || !c.status.active() {
		c.mu.Unlock()
		return "", nil, false
	}
	c.challenge = token
	c.image = ""
	c.mu.Unlock()

	return token, c.resolveImage(gen, token), true
}

func (c *Client) resolveImage(gen uint64, token string) *ImageLookup {
	lookup := newImageLookup(token)

	go func() {
		ctx, done, req, ok := c.track(context.Background(), gen)
		if !ok {
			lookup.finish("", &TransportError{Method: http.MethodGet, URL: recaptchaNoscriptURL, Err: context.Canceled})
			return
		}

		ref, err := c.resolver.ResolveImage(ctx, ChallengeRequest{Token: token, UserAgent: req.UserAgent})
		done()

		if err != nil {
			if !IsCancelled(err) && c.current(gen) {
				c.report(fmt.Errorf("resolve challenge image: %w", err))
				c.end(gen)
			}
			lookup.finish("", err)
			return
		}

		c.mu.Lock()
		if gen == c.gen && c.challenge == token {
			c.image = ref
		}
		c.mu.Unlock()

		lookup.finish(ref, nil)
	}()

	return lookup
}
