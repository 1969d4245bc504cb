package statsd

import "time"

// Tagged returns a Sink that merges fixed tags into every metric written to sink.
// Per-call tags win over fixed ones.
func Tagged(sink Sink, fixed map[string]string) Sink {
	if sink == nil {
		return nil
	}
	if len(fixed) == 0 {
		return sink
	}
	return &taggedSink{sink: sink, fixed: cloneTags(fixed)}
}

type taggedSink struct {
	sink  Sink
	fixed map[string]string
}

func (t *taggedSink) merge(tags map[string]string) map[string]string {
	out := make(map[string]string, len(t.fixed)+len(tags))
	for k, v := range t.fixed {
		out[k] = v
	}
	for k, v := range tags {
		out[k] = v
	}
	return out
}

func (t *taggedSink) Count(name string, value int64, tags map[string]string) {
	t.sink.Count(name, value, t.merge(tags))
}

func (t *taggedSink) Gauge(name string, value float64, tags map[string]string) {
	t.sink.Gauge(name, value, t.merge(tags))
}

func (t *taggedSink) Timing(name string, value time.Duration, tags map[string]string) {
	t.sink.Timing(name, value, t.merge(tags))
}
