package ability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func customer(id, customerID int64) Actor {
	return Actor{ID: id, Role: RoleCustomer, CustomerID: &customerID}
}

func admin(id int64) Actor      { return Actor{ID: id, Role: RoleAdmin} }
func superAdmin(id int64) Actor { return Actor{ID: id, Role: RoleSuperAdmin} }

func forActor(a Actor) *Ability { return NewFactory().ForActor(a) }

func TestCustomerOwnsAddresses(t *testing.T) {
	a := forActor(customer(1, 7))

	assert.True(t, a.Can(Query{Action: Read, Subject: Address, Instance: Attributes{"customer_id": int64(7)}}))
	assert.True(t, a.Can(Query{Action: Delete, Subject: Address, Instance: Attributes{"customer_id": 7}}))
	assert.False(t, a.Can(Query{Action: Read, Subject: Address, Instance: Attributes{"customer_id": int64(8)}}))
	assert.False(t, a.Can(Query{Action: Read, Subject: Address, Instance: Attributes{"id": int64(3)}}),
		"missing customer_id attribute must not match")
}

func TestCustomerTypeLevelChecks(t *testing.T) {
	a := forActor(customer(1, 7))

	assert.True(t, a.Can(Query{Action: Read, Subject: Wishlist}))
	assert.True(t, a.Can(Query{Action: Create, Subject: Order}))
	assert.True(t, a.Can(Query{Action: Update, Subject: Order, Field: "address_id"}))
	assert.False(t, a.Can(Query{Action: Update, Subject: Order, Field: "total"}))
	assert.False(t, a.Can(Query{Action: Read, Subject: OrderTransaction}))
	assert.False(t, a.Can(Query{Action: Create, Subject: Brand}))
	assert.True(t, a.Can(Query{Action: Read, Subject: Brand}))
}

func TestFieldScoping(t *testing.T) {
	a := forActor(customer(5, 7))
	self := Attributes{"id": int64(5)}

	assert.True(t, a.Can(Query{Action: Update, Subject: User, Instance: self, Field: "password"}))
	assert.False(t, a.Can(Query{Action: Update, Subject: User, Instance: self, Field: "role"}))
	assert.False(t, a.Can(Query{Action: Update, Subject: User, Instance: Attributes{"id": int64(6)}, Field: "password"}))
}

func TestOrderStatusUpdates(t *testing.T) {
	adm := forActor(admin(1))
	assert.False(t, adm.Can(Query{Action: Update, Subject: Order, Instance: Attributes{"status": "CANCELLED"}, Field: "status"}))
	assert.True(t, adm.Can(Query{Action: Update, Subject: Order, Instance: Attributes{"status": "SHIPPED"}, Field: "status"}))
	assert.False(t, adm.Can(Query{Action: Update, Subject: Order, Instance: Attributes{"status": "SHIPPED"}, Field: "address_id"}))

	cust := forActor(customer(2, 9))
	for _, prior := range []string{"PENDING", "SHIPPED", "CANCELLED"} {
		assert.True(t, cust.Can(Query{
			Action:   Update,
			Subject:  Order,
			Instance: Attributes{"status": "CANCELLED", "customer_id": int64(9), "prior_status": prior},
			Field:    "status",
		}))
	}
	assert.False(t, cust.Can(Query{Action: Update, Subject: Order, Instance: Attributes{"status": "SHIPPED"}, Field: "status"}))
}

func TestNilPointerAttributesAreMissing(t *testing.T) {
	adm := forActor(admin(1))
	assert.False(t, adm.Can(Query{Action: Update, Subject: Order, Instance: Attributes{"status": (*string)(nil)}, Field: "status"}),
		"a nil status must not satisfy status not CANCELLED")

	shipped := "SHIPPED"
	assert.True(t, adm.Can(Query{Action: Update, Subject: Order, Instance: Attributes{"status": &shipped}, Field: "status"}))

	cust := forActor(customer(1, 7))
	assert.False(t, cust.Can(Query{Action: Read, Subject: Address, Instance: Attributes{"customer_id": (*int64)(nil)}}))
	assert.False(t, cust.Can(Query{Action: Read, Subject: Address, Instance: Attributes{"customer_id": nil}}))
	assert.False(t, forActor(superAdmin(1)).Can(Query{Action: Create, Subject: User, Instance: Attributes{"role": (*string)(nil)}}))
}

func TestSchemaColumnsAreKnownFields(t *testing.T) {
	adm := forActor(admin(1))
	for _, f := range []string{"subtotal", "discount", "created_at"} {
		assert.True(t, IsKnownField(Order, f), f)
	}
	assert.True(t, adm.Can(Query{Action: Read, Subject: Order, Field: "subtotal"}))
	assert.True(t, forActor(customer(5, 7)).Can(Query{Action: Update, Subject: UserInfo, Instance: Attributes{"id": int64(5)}, Field: "birth_date"}))
}

func TestUserCreationRestriction(t *testing.T) {
	sa := forActor(superAdmin(1))
	assert.True(t, sa.Can(Query{Action: Create, Subject: User, Instance: Attributes{"role": "ADMIN"}}))
	assert.True(t, sa.Can(Query{Action: Create, Subject: User, Instance: Attributes{"role": "SUPERADMIN"}}))
	assert.False(t, sa.Can(Query{Action: Create, Subject: User, Instance: Attributes{"role": "CUSTOMER"}}))

	adm := forActor(admin(2))
	assert.False(t, adm.Can(Query{Action: Create, Subject: User, Instance: Attributes{"role": "ADMIN"}}))
	assert.False(t, adm.Can(Query{Action: Update, Subject: User, Field: "role"}))
}

func TestSuperAdminInheritsAdmin(t *testing.T) {
	const id = int64(42)
	adminRules := BuildRules(admin(id))
	sa := forActor(superAdmin(id))

	for _, r := range adminRules {
		for _, act := range r.Actions {
			acts := []Action{act}
			if act == Manage {
				acts = []Action{Create, Read, Update, Delete}
			}
			for _, qa := range acts {
				q := Query{Action: qa, Subject: r.Subject}
				if len(r.Conditions) > 0 {
					q.Instance = Attributes{}
					for _, p := range r.Conditions {
						switch p.Operator {
						case OpEq:
							q.Instance[p.Field] = p.Value
						case OpNot:
							q.Instance[p.Field] = "SHIPPED"
						}
					}
				}
				if len(r.Fields) > 0 {
					q.Field = r.Fields[0]
				}
				assert.True(t, sa.Can(q), "superadmin should inherit %v", q)
			}
		}
	}
}

func TestBuildRulesDeterministic(t *testing.T) {
	for _, actor := range []Actor{customer(1, 2), admin(3), superAdmin(4)} {
		first := BuildRules(actor)
		require.NotEmpty(t, first)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, BuildRules(actor))
		}
	}

	a := forActor(customer(1, 2))
	q := Query{Action: Read, Subject: Address, Instance: Attributes{"customer_id": int64(2)}}
	first := a.Check(q)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, a.Check(q))
	}
}

func TestSuperAdminRulesFollowAdminBlock(t *testing.T) {
	adminRules := BuildRules(admin(1))
	saRules := BuildRules(superAdmin(1))
	require.Greater(t, len(saRules), len(adminRules))
	assert.Equal(t, adminRules, saRules[:len(adminRules)])
}

func TestUnknownRoleHasNoRules(t *testing.T) {
	a := forActor(Actor{ID: 1, Role: Role("GUEST")})
	assert.Empty(t, a.Rules())
	assert.False(t, a.Can(Query{Action: Read, Subject: Brand}))
}

func TestUnknownSubjectAndFieldDeny(t *testing.T) {
	a := forActor(superAdmin(1))

	assert.NotPanics(t, func() {
		assert.False(t, a.Can(Query{Action: Read, Subject: Subject("Invoice")}))
		assert.False(t, a.Can(Query{Action: Update, Subject: Brand, Field: "logo"}))
		assert.False(t, a.Can(Query{Action: Manage, Subject: All}))
	})
	assert.True(t, a.Can(Query{Action: Update, Subject: Brand, Field: "name"}))
}

func TestEveryRequiresUnconditionedRule(t *testing.T) {
	assert.False(t, forActor(admin(1)).Can(Query{Action: Read, Subject: User, Every: true}))
	assert.True(t, forActor(superAdmin(1)).Can(Query{Action: Read, Subject: User, Every: true}))
	assert.False(t, forActor(customer(1, 2)).Can(Query{Action: Read, Subject: Address, Every: true}))
	assert.True(t, forActor(admin(1)).Can(Query{Action: Read, Subject: Address, Every: true}))
}

func TestLastMatchingRuleWins(t *testing.T) {
	a := forActor(superAdmin(9))
	d := a.Check(Query{Action: Read, Subject: User, Instance: Attributes{"id": int64(9)}})
	require.True(t, d.Allowed)
	require.NotNil(t, d.Rule)
	assert.Nil(t, d.Rule.Conditions, "the unconditioned superadmin rule is appended after the self rule")
}

func TestAuthorizeReturnsDeniedError(t *testing.T) {
	a := forActor(customer(1, 2))

	err := a.Authorize(Query{Action: Update, Subject: Order, Field: "status", Instance: Attributes{"status": "SHIPPED"}})
	require.Error(t, err)
	assert.True(t, IsDenied(err))
	assert.Equal(t, `Cannot execute "update" on "status" of "Order"`, err.Error())

	err = a.Authorize(Query{Action: Create, Subject: Brand})
	assert.Equal(t, `Cannot execute "create" on "Brand"`, err.Error())

	assert.NoError(t, a.Authorize(Query{Action: Read, Subject: Brand}))
}

func TestRulesReturnsCopy(t *testing.T) {
	a := forActor(customer(1, 2))
	rules := a.Rules()
	rules[0].Subject = Brand
	rules[0].Conditions[0].Value = int64(99)

	assert.True(t, a.Can(Query{Action: Delete, Subject: Address, Instance: Attributes{"customer_id": int64(2)}}))
}

func TestCustomerWithoutProfileOwnsNothing(t *testing.T) {
	a := forActor(Actor{ID: 1, Role: RoleCustomer})
	assert.False(t, a.Can(Query{Action: Read, Subject: Address, Instance: Attributes{"customer_id": int64(1)}}))
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("admin")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, r)

	_, ok = ParseRole("owner")
	assert.False(t, ok)
}
