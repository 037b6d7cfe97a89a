package variantcache

import "sync/atomic"

// Stats is a point-in-time copy of the Service counters.
type Stats struct {
	Served       int64 // requests answered, from source or cache
	Failed       int64 // requests that ended in an error response
	Generated    int64 // variants written
	TransformErr int64
}

// Stats returns request and transform counters.
func (s *Service) Stats() Stats {
	return Stats{
		Served:       atomic.LoadInt64(&s.served),
		Failed:       atomic.LoadInt64(&s.failed),
		Generated:    s.proc.ProcessedCount(),
		TransformErr: s.proc.ErrorCount(),
	}
}
