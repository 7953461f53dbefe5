package ability

// Query is a single authorization question.
//
// A nil Instance asks whether the action is possible on some instance of
// Subject, so rule conditions are not evaluated. Every asks whether the
// action is allowed on all instances, which only unconditioned rules grant.
type Query struct {
	Action   Action
	Subject  Subject
	Instance Attributes
	Field    string
	Every    bool
}

// Decision is the outcome of a Query. Rule is the last matching rule when
// Allowed is true.
type Decision struct {
	Allowed bool
	Action  Action
	Subject Subject
	Field   string
	Rule    *Rule
}

// Ability evaluates queries against one actor's rule set. It is read-only
// after construction.
type Ability struct {
	actor Actor
	rules []Rule
}

// New wraps an already built rule set.
func New(actor Actor, rules []Rule) *Ability {
	return &Ability{actor: actor, rules: rules}
}

func (a *Ability) Actor() Actor { return a.actor }

// Rules returns a copy of the rule set.
func (a *Ability) Rules() []Rule {
	out := make([]Rule, len(a.rules))
	for i, r := range a.rules {
		out[i] = r.clone()
	}
	return out
}

// Check evaluates q. Unknown subjects and fields outside a subject's known
// field set are denied without consulting rules.
func (a *Ability) Check(q Query) Decision {
	d := Decision{Action: q.Action, Subject: q.Subject, Field: q.Field}
	if !IsKnownSubject(q.Subject) {
		return d
	}
	if q.Field != "" && !IsKnownField(q.Subject, q.Field) {
		return d
	}

	var match *Rule
	for i := range a.rules {
		r := &a.rules[i]
		if !r.matchesAction(q.Action) || !r.matchesSubject(q.Subject) || !r.matchesField(q.Field) {
			continue
		}
		if !conditionHolds(r.Conditions, q) {
			continue
		}
		match = r
	}
	if match == nil {
		return d
	}
	rule := match.clone()
	d.Allowed = true
	d.Rule = &rule
	return d
}

func conditionHolds(c Condition, q Query) bool {
	if len(c) == 0 {
		return true
	}
	if q.Every {
		return false
	}
	if q.Instance == nil {
		return true
	}
	return c.Matches(q.Instance)
}

// Can reports whether q is allowed.
func (a *Ability) Can(q Query) bool {
	return a.Check(q).Allowed
}

// Authorize returns a *DeniedError when q is not allowed.
func (a *Ability) Authorize(q Query) error {
	d := a.Check(q)
	if d.Allowed {
		return nil
	}
	return &DeniedError{Action: q.Action, Subject: q.Subject, Field: q.Field}
}
