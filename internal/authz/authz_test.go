package authz

import (
	"testing"

	"grinkrawear/backend/internal/domain"
)

func TestAdminBypassesFlags(t *testing.T) {
	admin := domain.UserAccount{Username: "boss", Role: domain.RoleAdmin, Active: true}
	for _, cap := range []Capability{ViewInventory, DeleteProduct, ManageUsers, CancelInvoice} {
		if !Allowed(admin, cap) {
			t.Errorf("admin denied %s", cap)
		}
	}
}

func TestStaffBoundToFlags(t *testing.T) {
	staff := domain.UserAccount{
		Username: "clerk",
		Role:     domain.RoleStaff,
		Active:   true,
		Capabilities: domain.Capabilities{
			ViewInventory: true,
			CreateInvoice: true,
		},
	}
	if !Allowed(staff, ViewInventory) {
		t.Error("granted flag denied")
	}
	if !Allowed(staff, CreateInvoice) {
		t.Error("granted flag denied")
	}
	if Allowed(staff, DeleteProduct) {
		t.Error("missing flag allowed")
	}
	if Allowed(staff, ManageUsers) {
		t.Error("missing flag allowed")
	}
}

func TestInactiveAccountDeniedEverything(t *testing.T) {
	gone := domain.UserAccount{
		Username:     "former",
		Role:         domain.RoleAdmin,
		Active:       false,
		Capabilities: domain.Capabilities{ViewInventory: true},
	}
	if Allowed(gone, ViewInventory) {
		t.Error("inactive account allowed")
	}
	if got := Resolve(gone); got != (domain.Capabilities{}) {
		t.Errorf("inactive resolve = %+v", got)
	}
}

func TestResolve(t *testing.T) {
	admin := domain.UserAccount{Role: domain.RoleAdmin, Active: true}
	caps := Resolve(admin)
	if !caps.ManageUsers || !caps.AdjustStock {
		t.Errorf("admin resolve missing caps: %+v", caps)
	}

	staff := domain.UserAccount{
		Role:         domain.RoleStaff,
		Active:       true,
		Capabilities: domain.Capabilities{ViewBilling: true},
	}
	caps = Resolve(staff)
	if !caps.ViewBilling || caps.ManageUsers {
		t.Errorf("staff resolve = %+v", caps)
	}
}
