package game

import "github.com/park285/cheese-arena/internal/chess/channel"

// Slot is who plays one side: a HumanSlot or an EngineSlot.
type Slot interface {
	Label() string
	slot()
}

type HumanSlot struct {
	Name string
}

func (h HumanSlot) Label() string {
	if h.Name == "" {
		return "human"
	}
	return h.Name
}

func (HumanSlot) slot() {}

type EngineSlot struct {
	Channel *channel.Channel
}

func (e EngineSlot) Label() string {
	if e.Channel == nil {
		return "engine"
	}
	return e.Channel.Name()
}

func (EngineSlot) slot() {}

func engineOf(s Slot) (*channel.Channel, bool) {
	es, ok := s.(EngineSlot)
	if !ok || es.Channel == nil {
		return nil, false
	}
	return es.Channel, true
}
