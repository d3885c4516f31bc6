// Package publisher is a thin facade over the relay pool and encryption
// engine that routes one outgoing event either plaintext or wrapped,
// per the wrap-failure tolerance rules the engine's mode implies.
package publisher

import (
	"relaycap.dev/pkg/crypto/encryption"
	"relaycap.dev/pkg/encoders/event"
	"relaycap.dev/pkg/interfaces/signer"
	"relaycap.dev/pkg/relaypool"
	"relaycap.dev/pkg/utils/context"
	"relaycap.dev/pkg/utils/log"
)

// Options configures a single Publish call.
type Options struct {
	Encrypt   bool
	Recipient []byte
}

// Publisher is the Event Publisher.
type Publisher struct {
	pool   *relaypool.Pool
	engine *encryption.Engine
	signer signer.I
}

// New builds a Publisher over pool/engine, signing with sgn when
// wrapping is requested.
func New(pool *relaypool.Pool, engine *encryption.Engine, sgn signer.I) *Publisher {
	return &Publisher{pool: pool, engine: engine, signer: sgn}
}

// Publish routes ev either plaintext or gift-wrapped, per opts and the
// Encryption Engine's mode. Wrap failure is non-fatal in optional mode
// (publishes plaintext, logs a warning); in required mode the wrap error
// surfaces instead of publishing.
func (p *Publisher) Publish(ctx context.T, ev *event.E, opts Options) error {
	if !opts.Encrypt || len(opts.Recipient) == 0 || p.engine == nil || p.engine.Mode() == encryption.Disabled {
		return p.pool.Publish(ctx, ev)
	}
	wrapped, err := p.engine.EncryptMessage(p.signer, opts.Recipient, ev)
	if err != nil {
		if p.engine.Mode() == encryption.Required {
			return err
		}
		log.W.F("publisher: wrap failed, sending plaintext: %v", err)
		if len(ev.ID) == 0 {
			if err = ev.Sign(p.signer); err != nil {
				return err
			}
		}
		return p.pool.Publish(ctx, ev)
	}
	return p.pool.Publish(ctx, wrapped)
}
