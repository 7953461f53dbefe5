package ability

// Factory turns an actor into an Ability. Rules are rebuilt on every call;
// nothing is cached across requests.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) ForActor(actor Actor) *Ability {
	return New(actor, BuildRules(actor))
}
