package llm

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/agentstation/codescope"
)

// RateLimited limits gen to rps calls per second with the given burst.
// A non-positive rps returns gen unchanged.
func RateLimited(gen codescope.Generator, rps float64, burst int) codescope.Generator {
	if rps <= 0 {
		return gen
	}
	if burst < 1 {
		burst = 1
	}
	return &limitedGenerator{
		gen:     gen,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

type limitedGenerator struct {
	gen     codescope.Generator
	limiter *rate.Limiter
}

func (l *limitedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		kind := codescope.KindCanceled
		if ctx.Err() == nil || ctx.Err() == context.DeadlineExceeded {
			kind = codescope.KindTimeout
		}
		return "", &codescope.ServiceError{Kind: kind, Cause: err}
	}
	return l.gen.Generate(ctx, prompt)
}
