package domain

import (
	"testing"
	"time"
)

func TestFullName(t *testing.T) {
	testCases := []struct {
		first, last, want string
	}{
		{"Awa", "Diop", "Awa Diop"},
		{"Awa", "", "Awa"},
		{"", "Diop", "Diop"},
		{"", "", ""},
	}
	for _, tc := range testCases {
		i := &Identity{FirstName: tc.first, LastName: tc.last}
		if got := i.FullName(); got != tc.want {
			t.Errorf("FullName(%q,%q) = %q, want %q", tc.first, tc.last, got, tc.want)
		}
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if (&Identity{}).Expired(now) {
		t.Error("identity without expiration should never expire")
	}
	if !(&Identity{ExpirationDate: &past}).Expired(now) {
		t.Error("identity with past expiration should be expired")
	}
	if (&Identity{ExpirationDate: &future}).Expired(now) {
		t.Error("identity with future expiration should not be expired")
	}
}

func TestHasAuthority(t *testing.T) {
	i := &Identity{Authorities: []string{"ROLE_USER", "ROLE_ADMIN"}}
	if !i.HasAuthority("ROLE_ADMIN") {
		t.Error("should have ROLE_ADMIN")
	}
	if i.HasAuthority("ROLE_AGENT") {
		t.Error("should not have ROLE_AGENT")
	}
	if (&Identity{}).HasAuthority("ROLE_USER") {
		t.Error("identity with no authorities should have none")
	}
}

func TestAttributes(t *testing.T) {
	exp := time.Date(2027, 1, 2, 3, 4, 5, 0, time.UTC)
	i := &Identity{
		Phone:              "770000000",
		TypeCompte:         "ASSURE",
		Institution:        "IPRES",
		LangKey:            "fr",
		HasPasswordUpdated: true,
		ExpirationDate:     &exp,
		Extra:              map[string]string{"cachet": "AG-01"},
	}
	attrs := i.Attributes()

	want := map[string]string{
		"phone":              "770000000",
		"typeCompte":         "ASSURE",
		"institution":        "IPRES",
		"langKey":            "fr",
		"hasPasswordUpdated": "true",
		"expirationDate":     "2027-01-02T03:04:05Z",
		"cachet":             "AG-01",
	}
	if len(attrs) != len(want) {
		t.Errorf("attribute count = %d, want %d (%v)", len(attrs), len(want), attrs)
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attrs[%q] = %q, want %q", k, attrs[k], v)
		}
	}
	if _, ok := attrs["agence"]; ok {
		t.Error("empty agence should not appear in attributes")
	}
}

func TestAttributes_HasPasswordUpdatedAlwaysPresent(t *testing.T) {
	attrs := (&Identity{}).Attributes()
	if attrs["hasPasswordUpdated"] != "false" {
		t.Errorf("hasPasswordUpdated = %q, want \"false\"", attrs["hasPasswordUpdated"])
	}
}
