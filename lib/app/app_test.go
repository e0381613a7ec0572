// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"strings"
	"testing"
)

func TestID(t *testing.T) {
	tests := []struct {
		name      string
		spec      Spec
		namespace string
		want      string
	}{
		{"name and version", Spec{Name: "core-app", Version: "2"}, "", "core-app:2"},
		{"with tag", Spec{Name: "foo", Version: "1", Tag: "0002"}, "", "foo:1:0002"},
		{"with namespace", Spec{Name: "foo", Version: "1", Tag: "0002"}, "x", "foo:1:0002::x"},
		{"namespace without tag", Spec{Name: "holofuel", Version: "0.5"}, "test", "holofuel:0.5::test"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.spec.ID(test.namespace); got != test.want {
				t.Errorf("ID(%q) = %q, want %q", test.namespace, got, test.want)
			}
		})
	}
}

func TestSameIDIsSameApp(t *testing.T) {
	first := Spec{Name: "foo", Version: "1", Tag: "0002", Sources: []Source{{Path: "/a/foo.happ"}}}
	second := Spec{Name: "foo", Version: "1", Tag: "0002", Sources: []Source{{URL: "https://b/foo.happ"}}}
	if first.ID("") != second.ID("") {
		t.Errorf("specs differing only in source have different ids")
	}
}

func TestParseBundleName(t *testing.T) {
	spec, err := ParseBundleName("/var/lib/bundles/foo.1.0002.happ")
	if err != nil {
		t.Fatalf("ParseBundleName: %v", err)
	}
	if spec.Name != "foo" || spec.Version != "1" || spec.Tag != "0002" {
		t.Errorf("parsed %+v", spec)
	}
	if got := spec.ID(""); got != "foo:1:0002" {
		t.Errorf("ID = %q, want foo:1:0002", got)
	}
	if got := spec.ID("x"); got != "foo:1:0002::x" {
		t.Errorf("ID(x) = %q, want foo:1:0002::x", got)
	}

	spec, err = ParseBundleName("servicelogger.3.happ")
	if err != nil {
		t.Fatalf("ParseBundleName: %v", err)
	}
	if spec.ID("") != "servicelogger:3" {
		t.Errorf("ID = %q", spec.ID(""))
	}
}

func TestParseBundleNameRejects(t *testing.T) {
	for _, name := range []string{"foo.1.0002.zip", "foo.happ", "a.b.c.d.happ", "foo..1.happ"} {
		if _, err := ParseBundleName(name); err == nil {
			t.Errorf("ParseBundleName(%q) succeeded", name)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := Spec{
		Name:    "core-app",
		Version: "2",
		Sources: []Source{{Path: "core-app.2.happ"}},
		Roles:   []RoleSpec{{Name: "core-app"}, {Name: "holofuel"}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate(valid): %v", err)
	}

	invalid := Spec{
		Name:     "bad:name",
		Sources:  []Source{{Path: "x", URL: "y"}},
		Roles:    []RoleSpec{{Name: "r"}, {Name: "r"}},
		Identity: &IdentityOverride{Email: "a@b"},
	}
	err := invalid.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid spec")
	}
	for _, fragment := range []string{"':'", "version is required", "exactly one of path or url", "duplicate role", "registration_code"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("error missing %q: %v", fragment, err)
		}
	}
}

func TestMatchHelpers(t *testing.T) {
	if match, ok := ContainsAny("core-app:2", []string{"holofuel", "core-app"}); !ok || match != "core-app" {
		t.Errorf("ContainsAny = %q, %v", match, ok)
	}
	if _, ok := ContainsAny("chat:1", []string{"core-app", ""}); ok {
		t.Error("ContainsAny matched unrelated id")
	}
	if !HasAnyPrefix("uhCkkABC", []string{"uhCkk"}) {
		t.Error("HasAnyPrefix missed protected id")
	}
	if HasAnyPrefix("core-app:1", []string{"uhCkk", ""}) {
		t.Error("HasAnyPrefix matched unprotected id")
	}
}

func TestInstallRoles(t *testing.T) {
	bare := Spec{Name: "servicelogger", Version: "1"}
	if roles := bare.InstallRoles(); len(roles) != 1 || roles[0] != "servicelogger" {
		t.Errorf("InstallRoles() = %v, want [servicelogger]", roles)
	}

	multi := Spec{Name: "holofuel", Version: "1", Roles: []RoleSpec{
		{Name: "transactor", Properties: map[string]any{"not_editable_profile": true}},
		{Name: "profiles"},
	}}
	if roles := multi.InstallRoles(); len(roles) != 2 || roles[0] != "transactor" || roles[1] != "profiles" {
		t.Errorf("InstallRoles() = %v", roles)
	}
	if multi.Properties("transactor")["not_editable_profile"] != true {
		t.Error("Properties(transactor) lost the override")
	}
	if multi.Properties("missing") != nil {
		t.Error("Properties(missing) is not nil")
	}
}
