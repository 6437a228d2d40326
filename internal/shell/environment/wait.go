package environment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dockerbay/dockerbay/internal/shell/probe"
)

// =============================================================================
// Readiness
// =============================================================================

// pollResult is the outcome of one readiness poll.
type pollResult int

const (
	pollNotReady pollResult = iota
	pollReady
	pollFatal
)

// pollFunc performs one readiness poll. The error explains a not-ready or
// fatal result and is ignored for pollReady.
type pollFunc func(ctx context.Context) (pollResult, error)

var errNotReady = errors.New("not ready")

// waitUntilReady runs the log wait and then the URL wait, each bounded by
// the template timeout.
func (s *Service) waitUntilReady(ctx context.Context) error {
	if text := s.tmpl.WaitForLog(); text != "" {
		if err := s.poll(ctx, "log "+strconv.Quote(text), s.logContains(text)); err != nil {
			return err
		}
	}
	if path := s.tmpl.WaitForURL(); path != "" {
		if err := s.poll(ctx, "url "+path, s.urlAnswers(path)); err != nil {
			return err
		}
	}
	return nil
}

// poll calls fn every poll interval until it reports ready, reports fatal,
// or the template timeout elapses.
func (s *Service) poll(ctx context.Context, what string, fn pollFunc) error {
	timeout := s.tmpl.Timeout()
	start := time.Now()
	attempts := 0
	var fatal error

	s.logger.Info("waiting for service", "service", s.name, "condition", what, "timeout", timeout)

	backoff := retry.WithMaxDuration(timeout, retry.NewConstant(s.pollInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		result, err := fn(ctx)
		switch result {
		case pollReady:
			return nil
		case pollFatal:
			fatal = err
			return err
		default:
			if err == nil {
				err = errNotReady
			}
			s.logger.Debug("service not ready", "service", s.name, "condition", what,
				"attempt", attempts, "reason", err)
			return retry.RetryableError(err)
		}
	})

	switch {
	case err == nil:
		s.logger.Info("service ready", "service", s.name, "condition", what,
			"attempts", attempts, "elapsed", time.Since(start).Round(time.Millisecond))
		return nil
	case fatal != nil:
		return fmt.Errorf("wait for %s on service %q: %w", what, s.name, fatal)
	case ctx.Err() != nil:
		return fmt.Errorf("wait for %s on service %q: %w", what, s.name, ctx.Err())
	default:
		return fmt.Errorf("wait for %s on service %q after %d attempts in %s: %w (last: %v)",
			what, s.name, attempts, timeout, ErrReadinessTimeout, err)
	}
}

// logContains polls the container output for text.
func (s *Service) logContains(text string) pollFunc {
	return func(ctx context.Context) (pollResult, error) {
		out, err := s.runtime.ContainerLogs(ctx, s.name)
		if err != nil {
			return pollNotReady, err
		}
		if strings.Contains(out, text) {
			return pollReady, nil
		}
		return pollNotReady, nil
	}
}

// urlAnswers polls http://localhost:<host port><path> for a 2xx answer. A
// service without an assigned host port can never answer.
func (s *Service) urlAnswers(path string) pollFunc {
	return func(ctx context.Context) (pollResult, error) {
		if s.hostPort == 0 {
			return pollFatal, fmt.Errorf("container port %d: %w", s.tmpl.ExposedPort(), ErrNoAssignedPort)
		}
		base := "http://localhost:" + strconv.Itoa(s.hostPort)
		status, err := s.prober.Get(ctx, base, path)
		if err != nil {
			return pollNotReady, err
		}
		if probe.IsSuccess(status) {
			return pollReady, nil
		}
		return pollNotReady, fmt.Errorf("status %d", status)
	}
}
