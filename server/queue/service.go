package queue

// Service is the thin façade the rest of the system talks to: the engine
// plus the per-user EMA used for client-facing ETAs.
type Service struct {
	engine *Engine
	ema    *EMAStore
}

func NewService(engine *Engine, ema *EMAStore) *Service {
	if ema == nil {
		ema = NewEMAStore(engine.Config().EMAAlpha)
	}
	return &Service{engine: engine, ema: ema}
}

func (s *Service) Engine() *Engine { return s.engine }
func (s *Service) EMA() *EMAStore  { return s.ema }

// Enqueue pushes a request and returns it with its 0-based queue position.
func (s *Service) Enqueue(userID string, payload Payload) (*Request, int) {
	req := s.engine.Enqueue(userID, payload)
	ids := s.engine.repo.UserQueueIDs(userID)
	pos := 0
	for i, id := range ids {
		if id == req.RequestID {
			pos = i
			break
		}
	}
	return req, pos
}

// Finish reports a terminal outcome and, on success, feeds the user's EMA.
func (s *Service) Finish(requestID string, ok bool, reason string) *FinishResult {
	res := s.engine.Finish(requestID, ok, reason)
	if ok && res.DurationSec != nil {
		it, found := s.engine.Status(requestID)
		if found {
			s.ema.Update(it.UserID, *res.DurationSec)
		}
	}
	return res
}

// AvgPerItemSec is the estimated seconds one request takes for this user:
// per-user EMA when a sample exists, else the engine's window average, else
// the EMA default.
func (s *Service) AvgPerItemSec(userID string) float64 {
	if s.ema.Known(userID) {
		return s.ema.Get(userID)
	}
	if avg := s.engine.AvgFinishSec(); avg != nil && *avg > 0 {
		return *avg
	}
	return DefaultEMASeconds
}

// MyStatus is the per-user view: concurrency limits, queue position of the
// given request (0 when absent), and a rough ETA of
// position/per_user_limit * avg.
func (s *Service) MyStatus(userID, requestID string) MyStatus {
	cfg := s.engine.Config()
	ids := s.engine.repo.UserQueueIDs(userID)

	pos := 0
	if requestID != "" {
		for i, id := range ids {
			if id == requestID {
				pos = i
				break
			}
		}
	}

	perUser := cfg.MaxInflightPerUser
	if perUser < 1 {
		perUser = 1
	}
	eta := float64(pos) / float64(perUser) * s.AvgPerItemSec(userID)

	return MyStatus{
		PerUserLimit:     cfg.MaxInflightPerUser,
		GlobalLimit:      cfg.MaxInflightGlobal,
		InProgressUser:   s.engine.repo.InflightCountUser(userID),
		InProgressGlobal: s.engine.repo.InflightCountGlobal(),
		QueueLenUser:     len(ids),
		PositionInUser:   pos,
		ETASeconds:       eta,
	}
}

// Snapshot exposes the engine snapshot for diagnostic endpoints.
func (s *Service) Snapshot() *Snapshot {
	return s.engine.Snapshot()
}
