package signal

import (
	"context"

	"github.com/dkeye/Relay/internal/core"
)

func (s *session) handlePing(_ context.Context, _ core.Envelope) error {
	return s.conn.TrySend(core.MustEncode(core.EvPong, nil))
}
