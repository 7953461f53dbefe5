package ability

// OrderStatusCancelled is the order status customers may set and admins
// may not.
const OrderStatusCancelled = "CANCELLED"

type block func(b *ruleBuilder, actor Actor)

// roleBlocks composes each role's policy from shared blocks. Inheritance is
// plain concatenation: later blocks add to earlier ones.
var roleBlocks = map[Role][]block{
	RoleCustomer:   {customerBlock},
	RoleAdmin:      {adminBlock},
	RoleSuperAdmin: {adminBlock, superAdminBlock},
}

var catalogSubjects = []Subject{Brand, Category, Product, ProductVariant, Country, Region, City, Voucher}

// BuildRules returns the ordered rule set for actor. An unknown role yields
// no rules.
func BuildRules(actor Actor) []Rule {
	b := &ruleBuilder{}
	for _, fn := range roleBlocks[actor.Role] {
		fn(b, actor)
	}
	return b.rules
}

type ruleBuilder struct {
	rules []Rule
}

func (b *ruleBuilder) can(actions []Action, subject Subject, fields []string, cond ...Predicate) {
	r := Rule{Actions: actions, Subject: subject, Fields: fields}
	if len(cond) > 0 {
		r.Conditions = Condition(cond)
	}
	b.rules = append(b.rules, r)
}

func actions(a ...Action) []Action { return a }
func fields(f ...string) []string  { return f }

func customerBlock(b *ruleBuilder, actor Actor) {
	var customerID any
	if actor.CustomerID != nil {
		customerID = *actor.CustomerID
	}
	owned := Eq("customer_id", customerID)
	self := Eq("id", actor.ID)

	for _, s := range []Subject{Address, ProductCustomer, Wishlist, History} {
		b.can(actions(Manage), s, nil, owned)
	}

	b.can(actions(Create, Read, Delete), Order, nil, owned)
	b.can(actions(Update), Order, fields("address_id"), owned)
	b.can(actions(Update), Order, fields("status"), Eq("status", OrderStatusCancelled))

	b.can(actions(Read), User, nil, self)
	b.can(actions(Update), UserInfo, nil, self)
	b.can(actions(Update), User, fields("password"), self)
	b.can(actions(Delete), User, nil, self)

	for _, s := range catalogSubjects {
		b.can(actions(Read), s, nil)
	}
}

func adminBlock(b *ruleBuilder, actor Actor) {
	self := Eq("id", actor.ID)

	b.can(actions(Read), Address, nil)
	for _, s := range catalogSubjects {
		b.can(actions(Manage), s, nil)
	}

	b.can(actions(Read), User, nil, self)
	b.can(actions(Update), UserInfo, nil, self)
	b.can(actions(Update), User, fields("password"), self)

	b.can(actions(Read), Order, nil)
	b.can(actions(Update), Order, fields("status"), Not("status", OrderStatusCancelled))
	b.can(actions(Read), OrderTransaction, nil)
}

func superAdminBlock(b *ruleBuilder, _ Actor) {
	b.can(actions(Read), User, nil)
	b.can(actions(Create), User, nil, In("role", string(RoleAdmin), string(RoleSuperAdmin)))
	b.can(actions(Update), User, fields("role"))
	b.can(actions(Delete), User, nil)
}
