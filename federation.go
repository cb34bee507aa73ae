package iventy

import "slices"

// Federation is an emitter that receives the events of its members. Handlers
// installed on a federation see the events triggered on any member, extended
// with the tags the member was added with.
type Federation struct {
	*Emitter
	members []*Emitter
}

func NewFederation(maybeConfig ...Config) *Federation {
	return &Federation{Emitter: New(maybeConfig...)}
}

// Add makes source bubble its events to the federation. Federations nest by
// adding the embedded emitter of the inner federation.
func (federation *Federation) Add(source *Emitter, tags ...string) *Federation {
	if source == nil {
		federation.log().Error("federation member is nil", "federation", federation.name)
		return federation
	}
	source.BubbleTo(federation.Emitter, tags...)
	if !slices.Contains(federation.members, source) {
		federation.members = append(federation.members, source)
	}
	return federation
}

// Remove detaches source from the federation.
func (federation *Federation) Remove(source *Emitter) *Federation {
	if source == nil {
		return federation
	}
	source.Unbubble(federation.Emitter)
	federation.members = slices.DeleteFunc(federation.members, func(member *Emitter) bool {
		return member == source
	})
	return federation
}

func (federation *Federation) Members() []*Emitter {
	return slices.Clone(federation.members)
}
