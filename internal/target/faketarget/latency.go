package faketarget

// NanoDuration is a plain nanosecond count, kept distinct from
// time.Duration so the zero value reads unambiguously as "no
// artificial latency" at call sites that build a Target literal.
type NanoDuration int64

func (t *Target) sleep() {
	if t.LatencyPerCall > 0 {
		nanosleep(t.LatencyPerCall)
	}
}
