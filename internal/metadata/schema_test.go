package metadata

import (
	"testing"

	"commerce-backend/internal/ability"
)

func TestSchemaMatchesPolicyFields(t *testing.T) {
	for _, e := range Schema() {
		if e.Subject == "" {
			continue
		}
		if !ability.IsKnownSubject(e.Subject) {
			t.Errorf("%s: subject %q unknown to the policy", e.Name, e.Subject)
			continue
		}
		columns := map[string]bool{}
		for _, f := range e.Fields {
			columns[f.Name] = true
			if f.Hidden && f.Name != "password" {
				continue
			}
			if !ability.IsKnownField(e.Subject, f.Name) {
				t.Errorf("%s: column %q missing from %s fields", e.Name, f.Name, e.Subject)
			}
		}
		for _, name := range ability.KnownFields(e.Subject) {
			if !columns[name] {
				t.Errorf("%s: policy field %q has no column", e.Name, name)
			}
		}
	}
}

func TestUserInfoFieldsAreUserColumns(t *testing.T) {
	var user *Entity
	for _, e := range Schema() {
		if e.Subject == ability.User {
			user = e
		}
	}
	if user == nil {
		t.Fatalf("no entity for subject User")
	}
	for _, name := range ability.KnownFields(ability.UserInfo) {
		if user.GetField(name) == nil {
			t.Errorf("UserInfo field %q is not a users column", name)
		}
	}
}
