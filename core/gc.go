package core

import (
	"time"

	"github.com/encodeous/dronet/state"
)

func endpointGc(s *state.State) error {
	if n := Get[*Assembler](s).Gc(); n > 0 {
		s.Log.Debug("evicted stale reassembly buffers", "count", n)
	}
	Get[*Discovery](s).Gc()
	Get[*Reliability](s).Tick(time.Now())
	return nil
}
