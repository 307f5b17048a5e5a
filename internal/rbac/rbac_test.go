package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleViewer, ActionRead, true},
		{RoleViewer, ActionComment, false},
		{RoleViewer, ActionWrite, false},
		{RoleCommenter, ActionRead, true},
		{RoleCommenter, ActionComment, true},
		{RoleCommenter, ActionWrite, false},
		{RoleEditor, ActionWrite, true},
		{RoleEditor, ActionAdmin, false},
		{RoleAdmin, ActionAdmin, true},
		{Role("bogus"), ActionRead, false},
	}
	for _, c := range cases {
		if got := Can(c.role, c.action); got != c.want {
			t.Errorf("Can(%s, %s) = %v, want %v", c.role, c.action, got, c.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("editor"); got != RoleEditor {
		t.Errorf("Normalize(editor) = %s", got)
	}
	if got := Normalize("superuser"); got != RoleViewer {
		t.Errorf("Normalize(superuser) = %s, want viewer", got)
	}
}

func TestPublicRole(t *testing.T) {
	if got := PublicRole("commenter"); got != RoleCommenter {
		t.Errorf("PublicRole(commenter) = %s", got)
	}
	if got := PublicRole("editor"); got != RoleViewer {
		t.Errorf("PublicRole(editor) = %s, want viewer", got)
	}
	if got := PublicRole(""); got != RoleViewer {
		t.Errorf("PublicRole(\"\") = %s, want viewer", got)
	}
}
