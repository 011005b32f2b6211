package enums

import "testing"

func TestSetParse(t *testing.T) {
	got, err := actorRoles.parse("actor role", "driver")
	if err != nil || got != ActorRoleDriver {
		t.Fatalf("parse driver = %q, %v", got, err)
	}
	if _, err := actorRoles.parse("actor role", "Driver"); err == nil {
		t.Fatalf("parse is case sensitive")
	}
	if _, err := actorRoles.parse("actor role", ""); err == nil {
		t.Fatalf("blank must not parse")
	}
}

func TestChangeTypeIsValid(t *testing.T) {
	for _, c := range []ChangeType{ChangeInsert, ChangeUpdate, ChangeDelete} {
		if !c.IsValid() {
			t.Fatalf("%s should be valid", c)
		}
	}
	if ChangeType("upsert").IsValid() {
		t.Fatalf("upsert is not a change type")
	}
}
