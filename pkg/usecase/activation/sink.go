package activation

import "awakener/pkg/model"

// Sink receives loop events in the causal order they occur inside a round.
// Observers may join at any time; the Status query resynchronizes them.
type Sink interface {
	Publish(evt model.Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(evt model.Event)

func (f SinkFunc) Publish(evt model.Event) {
	f(evt)
}
