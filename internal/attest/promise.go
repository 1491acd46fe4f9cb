package attest

import (
	"context"
	"time"

	"github.com/st3v3nmw/mirrorcheck/internal/replay"
	"github.com/st3v3nmw/mirrorcheck/internal/scenario"
)

// timing defines when deferred operations should be executed
type timing int

const (
	TimingImmediate timing = iota
	TimingEventually
)

// PromiseBase provides common promise functionality
type PromiseBase struct {
	timing  timing
	timeout time.Duration
	ctx     context.Context
	config  *Config
}

func (b *PromiseBase) setEventually() {
	b.timing = TimingEventually
	b.timeout = b.config.ProcessStartTimeout
}

func (b *PromiseBase) setWithin(timeout time.Duration) {
	if b.timing != TimingEventually {
		panic("Within() can only be called after Eventually()")
	}

	b.timeout = timeout
}

// RedisPromise represents a deferred command against a store or the proxy
type RedisPromise struct {
	PromiseBase

	do     *Do
	target string
	conn   replay.Doer
	cmd    scenario.Command
}

// Eventually retries the command until its assertion holds or the
// process start timeout passes.
func (p *RedisPromise) Eventually() *RedisPromise {
	p.setEventually()
	return p
}

// Within sets a custom timeout for Eventually.
func (p *RedisPromise) Within(timeout time.Duration) *RedisPromise {
	p.setWithin(timeout)
	return p
}

// T creates the assertion for the command's outcome.
func (p *RedisPromise) T() *RedisAssert {
	return &RedisAssert{
		AssertBase: AssertBase{config: p.config},
		promise:    p,
	}
}

// HTTPPromise represents a deferred HTTP GET
type HTTPPromise struct {
	PromiseBase

	url string
}

// Eventually retries the request until its assertion holds or the
// process start timeout passes.
func (p *HTTPPromise) Eventually() *HTTPPromise {
	p.setEventually()
	return p
}

// T creates the assertion for the response.
func (p *HTTPPromise) T() *HTTPAssert {
	return &HTTPAssert{
		AssertBase: AssertBase{config: p.config},
		promise:    p,
	}
}
